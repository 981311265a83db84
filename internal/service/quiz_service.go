package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type quizRepository interface {
	ListByClasses(ctx context.Context, classIDs []string, forceRefresh bool) ([]models.Quiz, error)
	GetProgress(ctx context.Context, userID, quizID string) (models.QuizProgress, error)
	RecordAttempt(ctx context.Context, userID, quizID string, bestScore int) error
}

// XP granted per correct answer on a quiz's first attempt.
const xpPerCorrectAnswer = 10

// CompleteQuizRequest describes a finished quiz attempt.
type CompleteQuizRequest struct {
	UserID string `json:"user_id" validate:"required"`
	QuizID string `json:"quiz_id" validate:"required"`
	Score  int    `json:"score" validate:"min=0"`
}

// QuizResult summarizes the reward side of a completed attempt.
type QuizResult struct {
	FirstAttempt bool     `json:"firstAttempt"`
	XPAwarded    int      `json:"xpAwarded"`
	Level        int      `json:"level"`
	BestScore    int      `json:"bestScore"`
	Attempts     int      `json:"attempts"`
	Unlocked     []Unlock `json:"unlocked,omitempty"`
}

// QuizService lists quizzes and settles completed attempts: attempt
// counting, best-score tracking, first-attempt XP and the achievement
// re-evaluation that may follow.
type QuizService struct {
	repo         quizRepository
	achievements *AchievementService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewQuizService constructs QuizService.
func NewQuizService(repo quizRepository, achievements *AchievementService, validate *validator.Validate, logger *zap.Logger) *QuizService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{repo: repo, achievements: achievements, validator: validate, logger: logger}
}

// List returns the visible quizzes of the user's classes, cache-first.
func (s *QuizService) List(ctx context.Context, classIDs []string, forceRefresh bool) ([]models.Quiz, error) {
	return s.repo.ListByClasses(ctx, classIDs, forceRefresh)
}

// Progress returns the user's attempt record for one quiz.
func (s *QuizService) Progress(ctx context.Context, userID, quizID string) (models.QuizProgress, error) {
	if userID == "" || quizID == "" {
		return models.QuizProgress{}, appErrors.Clone(appErrors.ErrValidation, "user id and quiz id are required")
	}
	return s.repo.GetProgress(ctx, userID, quizID)
}

// Complete settles a finished attempt. XP is granted on the first attempt
// only, so replaying a quiz can never farm experience; repeat attempts still
// bump the counter and may raise the best score. The quizzesCompleted stat
// moves once per quiz, alongside the XP, which can cascade into achievement
// unlocks.
func (s *QuizService) Complete(ctx context.Context, req CompleteQuizRequest) (*QuizResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz completion payload")
	}

	progress, err := s.repo.GetProgress(ctx, req.UserID, req.QuizID)
	if err != nil {
		return nil, err
	}

	result := &QuizResult{
		FirstAttempt: progress.Attempts == 0,
		BestScore:    progress.BestScore,
		Attempts:     progress.Attempts + 1,
	}
	if req.Score > result.BestScore {
		result.BestScore = req.Score
	}

	if err := s.repo.RecordAttempt(ctx, req.UserID, req.QuizID, result.BestScore); err != nil {
		return nil, err
	}

	if !result.FirstAttempt {
		state, err := s.achievements.Profile(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		result.Level = state.Level
		return result, nil
	}

	result.XPAwarded = req.Score * xpPerCorrectAnswer
	level, err := s.achievements.AwardXP(ctx, req.UserID, result.XPAwarded)
	if err != nil {
		return nil, err
	}
	result.Level = level

	unlocked, err := s.achievements.RecordProgress(ctx, req.UserID, "quizzesCompleted", 1)
	if err != nil {
		return nil, err
	}
	result.Unlocked = unlocked

	s.logger.Info("quiz completed",
		zap.String("userId", req.UserID), zap.String("quizId", req.QuizID),
		zap.Int("score", req.Score), zap.Int("xp", result.XPAwarded))
	return result, nil
}
