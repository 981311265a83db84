package repository

import (
	"context"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
)

// QuizRepository reads quizzes and mutates per-user attempt progress.
type QuizRepository struct {
	store store.Store
	exec  queryRunner
}

// NewQuizRepository constructs the repository.
func NewQuizRepository(st store.Store, exec queryRunner) *QuizRepository {
	return &QuizRepository{store: st, exec: exec}
}

// ListByClasses returns visible quizzes for the given classes, cache-first,
// chunking filter sets beyond the store's multi-value cap.
func (r *QuizRepository) ListByClasses(ctx context.Context, classIDs []string, forceRefresh bool) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	for _, chunk := range chunkStrings(classIDs, store.MaxInValues) {
		q := store.Query{
			Collection: colQuizzes,
			Filters: []store.Filter{
				store.In("classId", chunk),
				store.Eq("isVisible", true),
			},
			OrderBy: "createdAt",
			Desc:    true,
		}
		docs, err := r.exec.Run(ctx, q, forceRefresh)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			quizzes = append(quizzes, models.Quiz{
				ID:            d.ID,
				ClassID:       store.StringField(d, "classId"),
				Title:         store.StringField(d, "title"),
				Materia:       store.StringField(d, "materia"),
				Unidade:       store.StringField(d, "unidade"),
				QuestionCount: store.IntField(d, "questionCount"),
				IsVisible:     store.BoolField(d, "isVisible"),
				CreatedAt:     store.TimeField(d, "createdAt"),
			})
		}
	}
	return quizzes, nil
}

// GetProgress loads a user's attempt record for one quiz from the network;
// a missing record decodes to zero attempts.
func (r *QuizRepository) GetProgress(ctx context.Context, userID, quizID string) (models.QuizProgress, error) {
	q := store.Query{
		Collection: colQuizProgress,
		Filters: []store.Filter{
			store.Eq("userId", userID),
			store.Eq("quizId", quizID),
		},
		Limit: 1,
	}
	docs, err := r.exec.Run(ctx, q, true)
	if err != nil {
		return models.QuizProgress{}, err
	}
	progress := models.QuizProgress{UserID: userID, QuizID: quizID}
	if len(docs) == 0 {
		return progress, nil
	}
	d := docs[0]
	progress.Attempts = store.IntField(d, "attempts")
	progress.BestScore = store.IntField(d, "bestScore")
	progress.UpdatedAt = store.TimeField(d, "updatedAt")
	return progress, nil
}

// RecordAttempt bumps the attempt counter and raises the best score when
// improved, in one atomic batch.
func (r *QuizRepository) RecordAttempt(ctx context.Context, userID, quizID string, bestScore int) error {
	id := userID + "_" + quizID
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colQuizProgress, id, map[string]interface{}{
			"userId":    userID,
			"quizId":    quizID,
			"bestScore": bestScore,
			"updatedAt": time.Now().UTC().Format(time.RFC3339),
		}),
		store.Increment(colQuizProgress, id, "attempts", 1),
	})
}

func chunkStrings(values []string, size int) [][]string {
	if len(values) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
