package service

import (
	"context"
	"errors"
	"strings"

	"studykit-be/internal/dto"
	"studykit-be/internal/entity"
	"studykit-be/internal/pkg/logger"
	"studykit-be/internal/repository/memory"
	"studykit-be/pkg/ai/pipeline"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/store"
)

var ErrSessionNotFound = store.ErrSessionNotFound

type IStudyService interface {
	CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error)
	GetSession(ctx context.Context, id string) (store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ResetSession(ctx context.Context, id string) (store.Session, error)

	AddImages(ctx context.Context, id string, files []dto.ImageFile) (*dto.UploadImagesResponse, error)
	RemoveImage(ctx context.Context, id string, imageId string) (store.Session, error)

	StartRun(ctx context.Context, id string, req *dto.StartRunRequest) (*dto.StartRunResponse, error)
	RetryArtifact(ctx context.Context, id string, artifact string) (*dto.RetryArtifactResponse, error)
	ExtendBonus(ctx context.Context, id string) (*dto.ExtensionResponse, error)
	ExtendBatch(ctx context.Context, id string) (*dto.ExtendBatchResponse, error)
	Clarify(ctx context.Context, id string, req *dto.ClarifyRequest) (*entity.Clarification, error)

	SelectBatch(ctx context.Context, id string, index int) (store.Session, error)
	RecordAnswer(ctx context.Context, id string, req *dto.RecordAnswerRequest) (*dto.RecordAnswerResponse, error)
	Navigate(ctx context.Context, id string, direction int) (*dto.NavigateResponse, error)
	FinishExam(ctx context.Context, id string) (store.Session, error)
	UpdateView(ctx context.Context, id string, req *dto.UpdateViewRequest) (store.Session, error)
	DismissNotice(ctx context.Context, id string) (store.Session, error)
	Export(ctx context.Context, id string) (*entity.ExportKit, error)
}

type studyService struct {
	sessions     *memory.SessionRepository
	orchestrator *pipeline.Orchestrator
	extensions   *pipeline.ExtensionEngine
	clarifier    *pipeline.Clarifier
	reducer      *pipeline.Reducer
	maxImages    int
	logger       logger.ILogger
}

func NewStudyService(
	sessions *memory.SessionRepository,
	orchestrator *pipeline.Orchestrator,
	extensions *pipeline.ExtensionEngine,
	clarifier *pipeline.Clarifier,
	reducer *pipeline.Reducer,
	maxImages int,
	log logger.ILogger,
) IStudyService {
	return &studyService{
		sessions:     sessions,
		orchestrator: orchestrator,
		extensions:   extensions,
		clarifier:    clarifier,
		reducer:      reducer,
		maxImages:    maxImages,
		logger:       log,
	}
}

func (s *studyService) find(id string) (*store.ArtifactStore, error) {
	st, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

// changed pushes the new state of st to live subscribers and returns it.
func (s *studyService) changed(st *store.ArtifactStore) store.Session {
	s.reducer.Notify(st)
	return st.Snapshot()
}

func (s *studyService) CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error) {
	st := s.sessions.Create()
	s.logger.Info("STUDY", "Session created", map[string]interface{}{"session_id": st.ID()})
	return &dto.CreateSessionResponse{Id: st.ID(), MaxImages: s.maxImages}, nil
}

func (s *studyService) GetSession(ctx context.Context, id string) (store.Session, error) {
	st, err := s.find(id)
	if err != nil {
		return store.Session{}, err
	}
	return st.Snapshot(), nil
}

func (s *studyService) DeleteSession(ctx context.Context, id string) error {
	st, err := s.find(id)
	if err != nil {
		return err
	}
	// In-flight derivations of a deleted session resolve to nothing and
	// are dropped by the reducer.
	st.Reset()
	s.sessions.Delete(id)
	s.logger.Info("STUDY", "Session deleted", map[string]interface{}{"session_id": id})
	return nil
}

func (s *studyService) ResetSession(ctx context.Context, id string) (store.Session, error) {
	st, err := s.find(id)
	if err != nil {
		return store.Session{}, err
	}
	st.Reset()
	return s.changed(st), nil
}

func (s *studyService) AddImages(ctx context.Context, id string, files []dto.ImageFile) (*dto.UploadImagesResponse, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}

	images := make([]entity.ImagePayload, 0, len(files))
	for _, f := range files {
		img, err := store.NewImagePayload(f.Data, f.ContentType)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	res, err := st.AddImages(images...)
	if err != nil {
		return nil, err
	}
	if res.Dropped > 0 {
		s.logger.Warn("STUDY", "Upload truncated", map[string]interface{}{
			"session_id": id,
			"dropped":    res.Dropped,
			"duplicates": res.Duplicates,
		})
	}
	snap := s.changed(st)
	return &dto.UploadImagesResponse{AddResult: res, Images: snap.Uploads}, nil
}

func (s *studyService) RemoveImage(ctx context.Context, id string, imageId string) (store.Session, error) {
	st, err := s.find(id)
	if err != nil {
		return store.Session{}, err
	}
	if err := st.RemoveImage(imageId); err != nil {
		return store.Session{}, err
	}
	return s.changed(st), nil
}

func (s *studyService) StartRun(ctx context.Context, id string, req *dto.StartRunRequest) (*dto.StartRunResponse, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	runID, err := s.orchestrator.StartRun(ctx, st, parseLanguage(req.Language))
	if err != nil {
		return nil, err
	}
	return &dto.StartRunResponse{RunId: runID, Session: st.Snapshot()}, nil
}

func (s *studyService) RetryArtifact(ctx context.Context, id string, artifact string) (*dto.RetryArtifactResponse, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	kind := store.ArtifactKind(strings.ToLower(strings.TrimSpace(artifact)))
	if err := s.orchestrator.RetryArtifact(ctx, st, kind); err != nil {
		return nil, err
	}
	return &dto.RetryArtifactResponse{Artifact: string(kind), RunId: st.Snapshot().RunID}, nil
}

// ExtendBonus reports an empty result as a notice rather than an error.
func (s *studyService) ExtendBonus(ctx context.Context, id string) (*dto.ExtensionResponse, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := s.extensions.ExtendBonus(ctx, st); err != nil && !errors.Is(err, llm.ErrEmptyResult) {
		return nil, err
	}
	snap := st.Snapshot()
	return &dto.ExtensionResponse{Session: snap, Notice: snap.Notice}, nil
}

func (s *studyService) ExtendBatch(ctx context.Context, id string) (*dto.ExtendBatchResponse, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	n, err := s.extensions.ExtendBatch(ctx, st)
	if errors.Is(err, llm.ErrEmptyResult) {
		return &dto.ExtendBatchResponse{Notice: st.Snapshot().Notice}, nil
	}
	if err != nil {
		return nil, err
	}
	return &dto.ExtendBatchResponse{BatchNumber: n}, nil
}

func (s *studyService) Clarify(ctx context.Context, id string, req *dto.ClarifyRequest) (*entity.Clarification, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	c, err := s.clarifier.Clarify(ctx, st, req.Span, req.Context, parseLanguage(req.Language))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *studyService) SelectBatch(ctx context.Context, id string, index int) (store.Session, error) {
	st, err := s.find(id)
	if err != nil {
		return store.Session{}, err
	}
	if err := st.SelectBatch(index); err != nil {
		return store.Session{}, err
	}
	return s.changed(st), nil
}

func (s *studyService) RecordAnswer(ctx context.Context, id string, req *dto.RecordAnswerRequest) (*dto.RecordAnswerResponse, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	opt, ok := entity.ParseOption(req.Option)
	if !ok {
		return nil, store.ErrInvalidOption
	}
	recorded, err := st.RecordAnswer(req.QuestionId, opt)
	if err != nil {
		return nil, err
	}

	snap := s.changed(st)
	res := &dto.RecordAnswerResponse{Recorded: recorded, Score: snap.Score}
	if snap.ActiveBatch < len(snap.Batches) {
		for _, q := range snap.Batches[snap.ActiveBatch].Questions {
			if q.Id == req.QuestionId {
				res.Correct = snap.UserAnswers[q.Id] == q.CorrectAnswer
				break
			}
		}
	}
	return res, nil
}

func (s *studyService) Navigate(ctx context.Context, id string, direction int) (*dto.NavigateResponse, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	idx, err := st.AdvanceQuestion(direction)
	if err != nil {
		return nil, err
	}
	s.reducer.Notify(st)
	return &dto.NavigateResponse{CurrentQuestionIndex: idx}, nil
}

func (s *studyService) FinishExam(ctx context.Context, id string) (store.Session, error) {
	st, err := s.find(id)
	if err != nil {
		return store.Session{}, err
	}
	if err := st.FinishExam(); err != nil {
		return store.Session{}, err
	}
	return s.changed(st), nil
}

func (s *studyService) UpdateView(ctx context.Context, id string, req *dto.UpdateViewRequest) (store.Session, error) {
	st, err := s.find(id)
	if err != nil {
		return store.Session{}, err
	}
	if req.Tab != nil {
		if err := st.SetActiveTab(entity.Tab(strings.ToLower(*req.Tab))); err != nil {
			return store.Session{}, err
		}
	}
	if req.Language != nil {
		if err := st.SetLanguage(parseLanguage(*req.Language)); err != nil {
			return store.Session{}, err
		}
	}
	return s.changed(st), nil
}

func (s *studyService) DismissNotice(ctx context.Context, id string) (store.Session, error) {
	st, err := s.find(id)
	if err != nil {
		return store.Session{}, err
	}
	st.DismissNotice()
	return s.changed(st), nil
}

func (s *studyService) Export(ctx context.Context, id string) (*entity.ExportKit, error) {
	st, err := s.find(id)
	if err != nil {
		return nil, err
	}
	kit, err := st.Export()
	if err != nil {
		return nil, err
	}
	return &kit, nil
}

func parseLanguage(s string) entity.Language {
	return entity.Language(strings.ToUpper(strings.TrimSpace(s)))
}
