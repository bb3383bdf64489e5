package usecase

import (
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

type noopObserver struct{}

func (noopObserver) RunStarted() {}

func (noopObserver) RunFinished(domain.AnalysisStatus, time.Duration, *domain.Rating) {}

func (noopObserver) BlockClassified(time.Duration, int) {}

func (noopObserver) RetrievalFallback(string) {}
