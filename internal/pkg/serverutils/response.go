package serverutils

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) Response {
	return Response{
		Success: true,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) Response {
	return Response{
		Success: false,
		Code:    code,
		Message: message,
	}
}

// ErrorResponseWithData is used when the client needs more than a message,
// e.g. the field errors of a failed validation.
func ErrorResponseWithData(code int, message string, data interface{}) Response {
	return Response{
		Success: false,
		Code:    code,
		Message: message,
		Data:    data,
	}
}
