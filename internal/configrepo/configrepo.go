// Package configrepo implements the Config Repository (C1): reading
// enabled monitored targets from Postgres and validating each row at the
// storage boundary before it reaches any prober.
package configrepo

import (
	"context"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"checkcx/internal/logging"
	"checkcx/internal/storage"
	"checkcx/internal/types"
)

// Repository is the Config Repository (C1).
type Repository struct {
	db     *storage.DB
	logger *zap.Logger
}

// New builds a Repository over db. logger may be zap.NewNop() in tests.
func New(db *storage.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// enabledConfigsCacheKey is the single cache slot for the enabled-config
// list; there is only ever one such list per process.
const enabledConfigsCacheKey = "enabled_configs"

// LoadEnabledConfigs returns every enabled target, stable-ordered by id. It
// never returns an error to the caller: on any backend failure it logs and
// returns (nil, nil), matching "empty means nothing to do" upstream. Reads
// are fronted by the Config Cache so bursts of HTTP reads (the dashboard and
// group endpoints reload configs on every request) don't each hit Postgres.
func (r *Repository) LoadEnabledConfigs(ctx context.Context) ([]types.ProviderConfig, error) {
	if cached, ok := r.db.ConfigCache().Get(enabledConfigsCacheKey); ok {
		return cached.([]types.ProviderConfig), nil
	}

	const query = `
		SELECT id, name, type, endpoint, model, api_key, is_maintenance,
		       request_header, metadata, group_name
		FROM check_configs
		WHERE enabled = true
		ORDER BY id`

	var rows []types.ProviderConfig
	if err := r.db.Conn().SelectContext(ctx, &rows, query); err != nil {
		r.logger.Warn("configrepo: load enabled configs failed", zap.Error(err), logging.KindConfig.Field())
		return nil, nil
	}

	valid := make([]types.ProviderConfig, 0, len(rows))
	for _, cfg := range rows {
		if err := validateRow(cfg); err != nil {
			r.logger.Warn("configrepo: skipping invalid row",
				zap.String("id", cfg.ID.String()),
				zap.Error(err),
				logging.KindConfig.Field())
			continue
		}
		valid = append(valid, cfg)
	}

	r.db.ConfigCache().Set(enabledConfigsCacheKey, valid)
	return valid, nil
}

func validateRow(cfg types.ProviderConfig) error {
	return validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Name, validation.Required),
		validation.Field(&cfg.Type, validation.Required, validation.By(validProviderType)),
		validation.Field(&cfg.Endpoint, validation.By(validEndpoint)),
	)
}

func validProviderType(value any) error {
	t, _ := value.(types.ProviderType)
	if !t.Valid() {
		return validation.NewError("validation_invalid_provider_type", "must be one of openai, gemini, anthropic")
	}
	return nil
}

func validEndpoint(value any) error {
	ep, _ := value.(*string)
	if ep == nil || *ep == "" {
		return nil
	}
	u, err := url.Parse(*ep)
	if err != nil || !u.IsAbs() {
		return validation.NewError("validation_invalid_endpoint", "must be empty or a parseable absolute URL")
	}
	return nil
}
