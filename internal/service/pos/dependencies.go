package pos

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
)

// Dependencies описывает коллабораторы кассы. Catalog и Processor обязательны,
// остальные поля опциональны.
type Dependencies struct {
	Catalog   domain.Catalog
	Processor *checkout.Processor
	Receipts  domain.ReceiptRepository
	Timeline  domain.TimelineRepository
	Outbox    domain.OutboxRepository
	Metrics   *metrics.POSMetrics
	Logger    *log.Entry
	// TaxRate — ставка налога; nil означает domain.DefaultTaxRate.
	TaxRate *decimal.Decimal
	Now     func() time.Time
	NewID   func() string
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = log.WithField("component", "pos")
	}
	if d.TaxRate == nil {
		rate := domain.DefaultTaxRate
		d.TaxRate = &rate
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}
