package services

import (
	"math"
	"time"

	"permabay/p120/internal/config"
	"permabay/p120/internal/models"
)

// IFeeService defines the interface for listing fee quoting.
type IFeeService interface {
	Quote(partition models.Partition, duration time.Duration) models.Fee
}

// feeService implements IFeeService. Fees are a flat daily rate per partition;
// partial days are billed as whole days.
type feeService struct {
	cfg *config.Config
}

// NewFeeService creates a new FeeService.
func NewFeeService(cfg *config.Config) IFeeService {
	return &feeService{cfg: cfg}
}

func (s *feeService) Quote(partition models.Partition, duration time.Duration) models.Fee {
	rate := s.cfg.StandardDailyRate
	if partition == models.PartitionFeatured {
		rate = s.cfg.FeaturedDailyRate
	}
	days := math.Ceil(duration.Hours() / 24)
	if days < 1 {
		days = 1
	}
	return models.Fee{
		Amount:       rate * days,
		CurrencyCode: s.cfg.CurrencyCode,
		Duration:     duration,
	}
}
