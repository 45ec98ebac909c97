// Package service реализует бизнес-логику сервиса проверки кодов.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/cusip-system/internal/model"
	"github.com/mmeshcher/cusip-system/internal/validation"
)

// Repository описывает контракт доступа к журналу проверок, используемый сервисом.
type Repository interface {
	Close() error
	InsertVerifications(ctx context.Context, records []model.Verification) error
	ListVerifications(ctx context.Context, clientID string, limit int) ([]model.Verification, error)
	ClearVerifications(ctx context.Context, clientID string) (int64, error)
}

// ErrHistoryUnavailable возвращается, когда сервис запущен без базы данных.
var (
	ErrHistoryUnavailable = errors.New("verification history is not available")
	// ErrBatchTooLarge возвращается, когда размер пачки превышает установленный лимит.
	ErrBatchTooLarge = errors.New("batch size exceeds limit")
)

const (
	recorderQueueSize  = 1024
	recorderFlushSize  = 100
	recorderFlushEvery = 1 * time.Second
)

// Service содержит бизнес-логику сервиса проверки кодов.
type Service struct {
	repo         Repository
	batchLimit   int
	batchWorkers int
	queue        chan model.Verification
}

// NewService создаёт новый сервис. Репозиторий может быть nil:
// в этом случае проверки выполняются без ведения журнала.
func NewService(repo Repository, batchLimit, batchWorkers int) *Service {
	return &Service{
		repo:         repo,
		batchLimit:   batchLimit,
		batchWorkers: batchWorkers,
		queue:        make(chan model.Verification, recorderQueueSize),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// VerifyCode проверяет один код и ставит запись журнала в очередь на сохранение.
// Сохранение выполняется в фоне и не задерживает ответ: при переполненной
// очереди запись отбрасывается.
func (s *Service) VerifyCode(clientID, code string) validation.Result {
	res := validation.ValidateCUSIP(code)

	if s.repo != nil {
		select {
		case s.queue <- newVerification(clientID, code, res):
		default:
		}
	}

	return res
}

// VerifyBatch проверяет пачку кодов параллельно. Результаты позиционно
// соответствуют входному списку.
func (s *Service) VerifyBatch(ctx context.Context, clientID string, codes []string) ([]validation.Result, error) {
	if len(codes) > s.batchLimit {
		return nil, ErrBatchTooLarge
	}

	results := make([]validation.Result, len(codes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchWorkers)

	for i, code := range codes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.VerifyCode(clientID, code)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// ListHistory возвращает последние проверки клиента.
func (s *Service) ListHistory(ctx context.Context, clientID string, limit int) ([]model.Verification, error) {
	if s.repo == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.repo.ListVerifications(ctx, clientID, limit)
}

// ClearHistory удаляет журнал проверок клиента.
func (s *Service) ClearHistory(ctx context.Context, clientID string) (int64, error) {
	if s.repo == nil {
		return 0, ErrHistoryUnavailable
	}
	return s.repo.ClearVerifications(ctx, clientID)
}

// StartRecorder запускает фоновый процесс сохранения записей журнала.
// Записи копятся и сбрасываются в БД пачками: раз в секунду или по
// достижении ста записей. При остановке очередь дочитывается и
// сбрасывается с отдельным коротким контекстом.
func (s *Service) StartRecorder(ctx context.Context) {
	if s.repo == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(recorderFlushEvery)
		defer ticker.Stop()

		batch := make([]model.Verification, 0, recorderFlushSize)

		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			// Ошибка сохранения не влияет на результаты проверок.
			_ = s.repo.InsertVerifications(ctx, batch)
			batch = batch[:0]
		}

		for {
			select {
			case <-ctx.Done():
				for drained := false; !drained; {
					select {
					case rec := <-s.queue:
						batch = append(batch, rec)
					default:
						drained = true
					}
				}

				flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				flush(flushCtx)
				cancel()
				return
			case rec := <-s.queue:
				batch = append(batch, rec)
				if len(batch) >= recorderFlushSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			}
		}
	}()
}

func newVerification(clientID, code string, res validation.Result) model.Verification {
	v := model.Verification{
		ClientID:  clientID,
		Code:      strings.TrimSpace(code),
		Valid:     res.Valid,
		ErrorKind: string(res.ErrorKind),
		Position:  res.Position,
		CheckedAt: time.Now().UTC(),
	}

	if res.HasChecksum() {
		sum := res.Sum
		calc := res.CalculatedDigit
		v.Checksum = &sum
		v.CalculatedDigit = &calc
	}

	if res.HasProvidedDigit() {
		provided := res.ProvidedDigit
		v.ProvidedDigit = &provided
	}

	return v
}
