package controller

import (
	"fmt"
	"io"
	"strings"

	"studykit-be/internal/dto"
	"studykit-be/internal/pkg/serverutils"
	"studykit-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

// maxImageBytes bounds a single uploaded page.
const maxImageBytes = 8 * 1024 * 1024

type IStudyController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	ResetSession(ctx *fiber.Ctx) error
	AddImages(ctx *fiber.Ctx) error
	RemoveImage(ctx *fiber.Ctx) error
	StartRun(ctx *fiber.Ctx) error
	RetryArtifact(ctx *fiber.Ctx) error
	ExtendBonus(ctx *fiber.Ctx) error
	ExtendBatch(ctx *fiber.Ctx) error
	SelectBatch(ctx *fiber.Ctx) error
	Clarify(ctx *fiber.Ctx) error
	RecordAnswer(ctx *fiber.Ctx) error
	Navigate(ctx *fiber.Ctx) error
	FinishExam(ctx *fiber.Ctx) error
	UpdateView(ctx *fiber.Ctx) error
	DismissNotice(ctx *fiber.Ctx) error
	Export(ctx *fiber.Ctx) error
}

type studyController struct {
	service service.IStudyService
}

func NewStudyController(service service.IStudyService) IStudyController {
	return &studyController{service: service}
}

func (c *studyController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/study/v1/sessions")
	h.Post("", c.CreateSession)
	h.Get(":id", c.GetSession)
	h.Delete(":id", c.DeleteSession)
	h.Post(":id/reset", c.ResetSession)

	h.Post(":id/images", c.AddImages)
	h.Delete(":id/images/:imageId", c.RemoveImage)

	h.Post(":id/runs", c.StartRun)
	h.Post(":id/retry/:artifact", c.RetryArtifact)
	h.Post(":id/bonus", c.ExtendBonus)
	h.Post(":id/batches", c.ExtendBatch)
	h.Put(":id/batches/active", c.SelectBatch)
	h.Post(":id/clarify", c.Clarify)

	h.Post(":id/answers", c.RecordAnswer)
	h.Post(":id/navigate", c.Navigate)
	h.Post(":id/finish", c.FinishExam)
	h.Put(":id/view", c.UpdateView)
	h.Delete(":id/notice", c.DismissNotice)
	h.Get(":id/export", c.Export)
}

// parse reads and validates a JSON body into req.
func parse(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return serverutils.ValidateRequest(req)
}

func (c *studyController) CreateSession(ctx *fiber.Ctx) error {
	res, err := c.service.CreateSession(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session created", res))
}

func (c *studyController) GetSession(ctx *fiber.Ctx) error {
	res, err := c.service.GetSession(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *studyController) DeleteSession(ctx *fiber.Ctx) error {
	if err := c.service.DeleteSession(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session deleted", nil))
}

func (c *studyController) ResetSession(ctx *fiber.Ctx) error {
	res, err := c.service.ResetSession(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session reset", res))
}

func (c *studyController) AddImages(ctx *fiber.Ctx) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form with images[] is required")
	}
	headers := form.File["images[]"]
	if len(headers) == 0 {
		headers = form.File["images"]
	}
	if len(headers) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no images in request")
	}

	files := make([]dto.ImageFile, 0, len(headers))
	for _, fh := range headers {
		ct := fh.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(ct, "image/") {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s is not an image", fh.Filename))
		}
		if fh.Size > maxImageBytes {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("%s is too large", fh.Filename))
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}
		files = append(files, dto.ImageFile{Filename: fh.Filename, ContentType: ct, Data: data})
	}

	res, err := c.service.AddImages(ctx.UserContext(), ctx.Params("id"), files)
	if err != nil {
		return err
	}
	msg := "Images added"
	if res.Dropped > 0 {
		msg = fmt.Sprintf("Images added, %d dropped", res.Dropped)
	}
	return ctx.JSON(serverutils.SuccessResponse(msg, res))
}

func (c *studyController) RemoveImage(ctx *fiber.Ctx) error {
	res, err := c.service.RemoveImage(ctx.UserContext(), ctx.Params("id"), ctx.Params("imageId"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Image removed", res))
}

func (c *studyController) StartRun(ctx *fiber.Ctx) error {
	var req dto.StartRunRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.StartRun(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Extraction complete, generating study kit", res))
}

func (c *studyController) RetryArtifact(ctx *fiber.Ctx) error {
	res, err := c.service.RetryArtifact(ctx.UserContext(), ctx.Params("id"), ctx.Params("artifact"))
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Retry dispatched", res))
}

func (c *studyController) ExtendBonus(ctx *fiber.Ctx) error {
	res, err := c.service.ExtendBonus(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	if res.Notice != nil {
		return ctx.JSON(serverutils.SuccessResponse(res.Notice.Message, res))
	}
	return ctx.JSON(serverutils.SuccessResponse("Bonus material added", res))
}

func (c *studyController) ExtendBatch(ctx *fiber.Ctx) error {
	res, err := c.service.ExtendBatch(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	if res.Notice != nil {
		return ctx.JSON(serverutils.SuccessResponse(res.Notice.Message, res))
	}
	return ctx.JSON(serverutils.SuccessResponse(fmt.Sprintf("Batch %d generated", res.BatchNumber), res))
}

func (c *studyController) SelectBatch(ctx *fiber.Ctx) error {
	var req dto.SelectBatchRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.SelectBatch(ctx.UserContext(), ctx.Params("id"), *req.Index)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Batch selected", res))
}

func (c *studyController) Clarify(ctx *fiber.Ctx) error {
	var req dto.ClarifyRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.Clarify(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success clarify", res))
}

func (c *studyController) RecordAnswer(ctx *fiber.Ctx) error {
	var req dto.RecordAnswerRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.RecordAnswer(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	if !res.Recorded {
		return ctx.JSON(serverutils.SuccessResponse("Question already answered", res))
	}
	return ctx.JSON(serverutils.SuccessResponse("Answer recorded", res))
}

func (c *studyController) Navigate(ctx *fiber.Ctx) error {
	var req dto.NavigateRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.Navigate(ctx.UserContext(), ctx.Params("id"), req.Direction)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success navigate", res))
}

func (c *studyController) FinishExam(ctx *fiber.Ctx) error {
	res, err := c.service.FinishExam(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Exam finished", res))
}

func (c *studyController) UpdateView(ctx *fiber.Ctx) error {
	var req dto.UpdateViewRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.UpdateView(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("View updated", res))
}

func (c *studyController) DismissNotice(ctx *fiber.Ctx) error {
	res, err := c.service.DismissNotice(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Notice dismissed", res))
}

func (c *studyController) Export(ctx *fiber.Ctx) error {
	res, err := c.service.Export(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success export", res))
}
