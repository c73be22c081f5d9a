// Package channelstore is the read-only projection the Routing Pipeline
// and Load Balancer consume for Channel + ModelMapping + CallerCredential
// data. Per DESIGN NOTES §9, the core needs only flat, already-joined
// records — never attribute-access lazy loading — so every channel read
// here is one channel query plus one batched mapping query, producing fully
// populated domain values.
package channelstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/llmweaver/gateway/internal/apikey"
	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/logging"
)

type channelRow struct {
	ID       int64 `gorm:"primarykey"`
	Provider string
	APIBase  string
	APIKey   string
	APIVersion   string
	Organization string
	ModelCostsJSON   string `gorm:"type:text"`
	DefaultCostInput  float64
	DefaultCostOutput float64
	HasDefaultCost    bool
	Weight   int
	Priority int
	Status   string
	IsSystem bool
}

func (channelRow) TableName() string { return "channels" }

type modelMappingRow struct {
	ID            int64 `gorm:"primarykey"`
	ChannelID     int64 `gorm:"index"`
	PublicModelID string `gorm:"index"`
	UpstreamModel string
}

func (modelMappingRow) TableName() string { return "model_mappings" }

type callerCredentialRow struct {
	ID               int64  `gorm:"primarykey"`
	OwnerID          int64  `gorm:"index"`
	APIKeyLookup     string `gorm:"uniqueIndex"` // apikey.Lookup(key): indexed, deterministic
	PasswordHash     string // apikey.Hash(key): bcrypt, verified after the lookup hit
	AllowedModelsCSV string
	BudgetLimit      float64
	BudgetUsed       float64
	Active           bool
}

func (callerCredentialRow) TableName() string { return "caller_credentials" }

// Store is the GORM-backed channel/mapping/credential projection.
type Store struct {
	db *gorm.DB
}

// New wraps a *gorm.DB, auto-migrating the channel, mapping and credential
// tables first when db is non-nil.
func New(db *gorm.DB) (*Store, error) {
	if db != nil {
		if err := db.AutoMigrate(&channelRow{}, &modelMappingRow{}, &callerCredentialRow{}); err != nil {
			return nil, errors.Wrap(err, "migrate channelstore tables")
		}
	}
	return &Store{db: db}, nil
}

// ActiveChannels returns every channel whose status is active, each with
// its current ModelMapping set attached (one channel query, then one
// batched mapping query).
func (s *Store) ActiveChannels(ctx context.Context) ([]domain.Channel, error) {
	var rows []channelRow
	if err := s.db.WithContext(ctx).Where("status = ?", string(domain.ChannelActive)).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query active channels")
	}
	return s.hydrate(ctx, rows)
}

// AllChannels returns every channel regardless of status, for admin
// surfaces (health-check-all, status dumps).
func (s *Store) AllChannels(ctx context.Context) ([]domain.Channel, error) {
	var rows []channelRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query all channels")
	}
	return s.hydrate(ctx, rows)
}

// Channel looks up a single channel by id, with its mappings attached.
func (s *Store) Channel(ctx context.Context, id int64) (domain.Channel, bool, error) {
	var row channelRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Channel{}, false, nil
	}
	if err != nil {
		return domain.Channel{}, false, errors.Wrap(err, "query channel")
	}
	hydrated, err := s.hydrate(ctx, []channelRow{row})
	if err != nil || len(hydrated) == 0 {
		return domain.Channel{}, false, err
	}
	return hydrated[0], true, nil
}

func (s *Store) hydrate(ctx context.Context, rows []channelRow) ([]domain.Channel, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var mappingRows []modelMappingRow
	if err := s.db.WithContext(ctx).Where("channel_id IN ?", ids).Find(&mappingRows).Error; err != nil {
		return nil, errors.Wrap(err, "query model mappings")
	}

	byChannel := make(map[int64][]domain.ModelMapping, len(rows))
	for _, m := range mappingRows {
		byChannel[m.ChannelID] = append(byChannel[m.ChannelID], domain.ModelMapping{
			ChannelID:     m.ChannelID,
			PublicModelID: m.PublicModelID,
			UpstreamModel: m.UpstreamModel,
		})
	}

	out := make([]domain.Channel, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Channel{
			ID:       r.ID,
			Provider: domain.ProviderKind(r.Provider),
			Config:   rowToConfig(r),
			Weight:   r.Weight,
			Priority: r.Priority,
			Status:   domain.ChannelStatus(r.Status),
			IsSystem: r.IsSystem,
			Mappings: byChannel[r.ID],
		})
	}
	return out, nil
}

// Authenticate adapts CredentialByAPIKey to the single-error shape the
// Routing Pipeline's Authenticator interface expects: an unknown or
// mismatched key surfaces as an error rather than a (false, nil) pair.
func (s *Store) Authenticate(ctx context.Context, rawAPIKey string) (domain.CallerCredential, error) {
	cred, found, err := s.CredentialByAPIKey(ctx, rawAPIKey)
	if err != nil {
		return domain.CallerCredential{}, err
	}
	if !found {
		return domain.CallerCredential{}, errors.New("unknown api key")
	}
	return cred, nil
}

// CredentialByAPIKey resolves a raw bearer token to its caller credential:
// an indexed lookup-hash fetch followed by a bcrypt verification against
// the stored password-hash, the authentication seam the Routing
// Pipeline's step 1 calls. A lookup miss and a bcrypt mismatch are both
// reported as (zero, false, nil) — the caller cannot distinguish "unknown
// key" from "wrong key", which is the point.
func (s *Store) CredentialByAPIKey(ctx context.Context, rawKey string) (domain.CallerCredential, bool, error) {
	var row callerCredentialRow
	err := s.db.WithContext(ctx).Where("api_key_lookup = ?", apikey.Lookup(rawKey)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CallerCredential{}, false, nil
	}
	if err != nil {
		return domain.CallerCredential{}, false, errors.Wrap(err, "query caller credential")
	}
	if !apikey.Verify(row.PasswordHash, rawKey) {
		return domain.CallerCredential{}, false, nil
	}
	return domain.CallerCredential{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		AllowedModels: splitCSV(row.AllowedModelsCSV),
		BudgetLimit:   row.BudgetLimit,
		BudgetUsed:    row.BudgetUsed,
		Active:        row.Active,
	}, true, nil
}

// CreateCredential stores a freshly generated API key's hash and lookup
// digest, returning the raw key (shown to the caller exactly once).
func (s *Store) CreateCredential(ctx context.Context, ownerID int64, allowedModels []string, budgetLimit float64) (string, domain.CallerCredential, error) {
	rawKey, err := apikey.Generate()
	if err != nil {
		return "", domain.CallerCredential{}, err
	}
	hash, err := apikey.Hash(rawKey)
	if err != nil {
		return "", domain.CallerCredential{}, err
	}

	row := callerCredentialRow{
		OwnerID:          ownerID,
		APIKeyLookup:     apikey.Lookup(rawKey),
		PasswordHash:     hash,
		AllowedModelsCSV: joinCSV(allowedModels),
		BudgetLimit:      budgetLimit,
		Active:           true,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", domain.CallerCredential{}, errors.Wrap(err, "create caller credential")
	}

	return rawKey, domain.CallerCredential{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		AllowedModels: allowedModels,
		BudgetLimit:   budgetLimit,
		Active:        true,
	}, nil
}

// IncrementBudget atomically adds delta to a credential's budget_used.
// A single SQL UPDATE ... SET x = x + ? guarantees no increment is lost
// even under concurrent callers; brief in-flight overrun past the budget
// ceiling is acceptable.
func (s *Store) IncrementBudget(ctx context.Context, credentialID int64, delta float64) error {
	return s.db.WithContext(ctx).Model(&callerCredentialRow{}).
		Where("id = ?", credentialID).
		UpdateColumn("budget_used", gorm.Expr("budget_used + ?", delta)).Error
}

func rowToConfig(r channelRow) domain.ChannelConfig {
	cfg := domain.ChannelConfig{
		APIBase:      r.APIBase,
		APIKey:       r.APIKey,
		APIVersion:   r.APIVersion,
		Organization: r.Organization,
	}
	if r.ModelCostsJSON != "" {
		var costs map[string]domain.CostPair
		if err := json.Unmarshal([]byte(r.ModelCostsJSON), &costs); err != nil {
			logging.SysLogf("channelstore: discarding unparsable model_costs for channel %d: %v", r.ID, err)
		} else {
			cfg.ModelCosts = costs
		}
	}
	if r.HasDefaultCost {
		cfg.DefaultCosts = &domain.CostPair{Input: r.DefaultCostInput, Output: r.DefaultCostOutput}
	}
	return cfg
}

func joinCSV(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
