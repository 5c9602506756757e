package app

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/catalog"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/scheduler"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
	"github.com/vladislavdragonenkov/pos/internal/service/payment"
	"github.com/vladislavdragonenkov/pos/internal/service/pos"
)

// Dependencies содержит собранный граф кассы.
type Dependencies struct {
	Catalog   domain.Catalog
	Gateway   domain.PaymentGateway
	Processor *checkout.Processor
	Metrics   *metrics.POSMetrics
	Registry  *pos.Registry
	Logger    *log.Entry
}

// NewDependencies собирает каталог, платёжный шлюз и реестр сессий поверх
// выбранного хранилища. Платёжный шлюз симулируемый.
func NewDependencies(cfg Config, storage runtimeDependencies, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	products, err := catalog.FromConfig(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	taxRate, err := parseTaxRate(cfg.TaxRate)
	if err != nil {
		return nil, err
	}

	declined, err := parsePaymentMethods(cfg.DeclinedMethods)
	if err != nil {
		return nil, err
	}

	gateway := payment.NewRetryingGateway(
		payment.NewSimulatedGateway(
			payment.WithDeclinedMethods(declined...),
			payment.WithLogger(logger.WithField("component", "payment")),
		),
		payment.DefaultRetryConfig(),
		logger.WithField("component", "payment-retry"),
	)

	posMetrics := metrics.NewPOSMetrics()
	processor := checkout.NewProcessor(gateway, scheduler.NewTimer(),
		checkout.WithDelay(cfg.PaymentDelay),
		checkout.WithMetrics(posMetrics),
		checkout.WithLogger(logger.WithField("component", "checkout-processor")),
	)

	registry := pos.NewRegistry(pos.Dependencies{
		Catalog:   products,
		Processor: processor,
		Receipts:  storage.receipts,
		Timeline:  storage.timeline,
		Outbox:    storage.outbox,
		Metrics:   posMetrics,
		Logger:    logger.WithField("component", "pos"),
		TaxRate:   &taxRate,
	})

	return &Dependencies{
		Catalog:   products,
		Gateway:   gateway,
		Processor: processor,
		Metrics:   posMetrics,
		Registry:  registry,
		Logger:    logger,
	}, nil
}

// parseTaxRate разбирает ставку; пустая строка означает ставку по умолчанию.
func parseTaxRate(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DefaultTaxRate, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid tax rate %q: %w", raw, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("tax rate %s must be in [0, 1)", rate)
	}
	return rate, nil
}

func parsePaymentMethods(raw string) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		method, err := domain.ParsePaymentMethod(part)
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}
	return methods, nil
}
