package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/domain/event"
	"github.com/garyjia/uxone/pkg/utils"
)

// errIdentifierCollision marks an allocated identifier that an owner row already uses
var errIdentifierCollision = errors.New("identifier already in use")

// SequenceConfig configures identifier families and allocation retries
type SequenceConfig struct {
	Families    []entity.SequenceFamily
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultSequenceFamilies returns the built-in identifier families
func DefaultSequenceFamilies() []entity.SequenceFamily {
	return []entity.SequenceFamily{
		{Name: entity.FamilyDemand, Prefix: "DMD", Period: entity.BucketDaily, Width: 3},
		{Name: entity.FamilyProject, Prefix: "PRJ", Period: entity.BucketDaily, Width: 3},
		{Name: entity.FamilyDocument, Prefix: "DOC", Period: entity.BucketYearly, Width: 3},
		{Name: entity.FamilyTicket, Prefix: "TKT", Period: entity.BucketDaily, Width: 4},
	}
}

// WidthConfigKey is the system_configs key that overrides a family's counter width
func WidthConfigKey(family string) string {
	return "sequence." + family + ".width"
}

// SequenceGenerator allocates unique bucket-scoped identifiers
type SequenceGenerator interface {
	// NextIdentifier allocates the next identifier of a family. The counter
	// increment is the only serialization point; a returned identifier is
	// never handed to another caller.
	NextIdentifier(ctx context.Context, family string) (string, error)

	// Preview returns the identifier the next allocation would produce without
	// allocating it. It is informational only.
	Preview(ctx context.Context, family string) (string, error)

	// Families lists the configured families sorted by name
	Families() []entity.SequenceFamily
}

type sequenceGeneratorImpl struct {
	seqRepo    port.SequenceRepository
	configRepo port.SystemConfigRepository
	owners     map[string]port.IdentifierLookup
	txManager  port.TransactionManager
	families   map[string]entity.SequenceFamily
	retry      *utils.RetryStrategy
	opts       options
	logger     Logger
}

// NewSequenceGenerator creates a new SequenceGenerator. owners maps a family name
// to the table that stores its identifiers; configRepo may be nil.
func NewSequenceGenerator(
	cfg SequenceConfig,
	seqRepo port.SequenceRepository,
	configRepo port.SystemConfigRepository,
	owners map[string]port.IdentifierLookup,
	txManager port.TransactionManager,
	logger Logger,
	opts ...Option,
) (SequenceGenerator, error) {
	families := cfg.Families
	if len(families) == 0 {
		families = DefaultSequenceFamilies()
	}

	byName := make(map[string]entity.SequenceFamily, len(families))
	for _, f := range families {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate sequence family %s", entity.ErrValidation, f.Name)
		}
		byName[f.Name] = f
	}

	retry := utils.NewRetryStrategy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	} else {
		retry.MaxAttempts = 5
	}
	if cfg.BaseBackoff > 0 {
		retry.BaseBackoff = cfg.BaseBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	if owners == nil {
		owners = map[string]port.IdentifierLookup{}
	}

	return &sequenceGeneratorImpl{
		seqRepo:    seqRepo,
		configRepo: configRepo,
		owners:     owners,
		txManager:  txManager,
		families:   byName,
		retry:      retry,
		opts:       newOptions(opts),
		logger:     logger,
	}, nil
}

// NextIdentifier allocates the next identifier for a family
func (s *sequenceGeneratorImpl) NextIdentifier(ctx context.Context, family string) (string, error) {
	fam, err := s.resolveFamily(ctx, family)
	if err != nil {
		return "", err
	}

	var identifier, bucket string
	attempts, err := s.retry.Do(ctx, isRetryableAllocation, func(attempt int) error {
		// A retry can cross a bucket boundary, so each attempt reads the clock
		bucket = fam.Period.Key(s.opts.now())
		var counter int64
		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			c, err := s.seqRepo.Increment(txCtx, fam.Name, bucket)
			if err != nil {
				return err
			}
			counter = c
			return nil
		})
		if err != nil {
			if errors.Is(err, entity.ErrStorageBusy) {
				s.opts.metrics.SequenceRetried(fam.Name, "busy")
				s.logger.Info("Sequence counter busy, retrying", "family", fam.Name, "bucket", bucket, "attempt", attempt)
			}
			return err
		}

		candidate := fam.Format(bucket, counter)

		if lookup, ok := s.owners[fam.Name]; ok {
			exists, err := lookup.ExistsByCode(ctx, candidate)
			if err != nil {
				return fmt.Errorf("check identifier owner: %w", err)
			}
			if exists {
				s.opts.metrics.SequenceRetried(fam.Name, "collision")
				s.logger.Error("Allocated identifier already in use", "family", fam.Name, "identifier", candidate, "attempt", attempt)
				return errIdentifierCollision
			}
		}

		identifier = candidate
		return nil
	})
	if err != nil {
		if isRetryableAllocation(err) {
			s.logger.Error("Sequence exhausted", "family", fam.Name, "bucket", bucket, "attempts", attempts, "error", err)
			return "", fmt.Errorf("%w: family %s bucket %s after %d attempts: %v",
				entity.ErrSequenceExhausted, fam.Name, bucket, attempts, err)
		}
		s.logger.Error("Failed to allocate identifier", "family", fam.Name, "error", err)
		return "", fmt.Errorf("allocate %s identifier: %w", fam.Name, err)
	}

	s.opts.metrics.SequenceAllocated(fam.Name)
	s.opts.publish(ctx, event.NewEvent(event.TypeIdentifierAllocated, 0, identifier, map[string]interface{}{
		event.KeyFamily:     fam.Name,
		event.KeyIdentifier: identifier,
		event.KeyAttempts:   attempts,
	}))

	s.logger.Info("Identifier allocated", "family", fam.Name, "identifier", identifier, "attempts", attempts)
	return identifier, nil
}

// Preview returns the next identifier without allocating
func (s *sequenceGeneratorImpl) Preview(ctx context.Context, family string) (string, error) {
	fam, err := s.resolveFamily(ctx, family)
	if err != nil {
		return "", err
	}

	bucket := fam.Period.Key(s.opts.now())
	current, err := s.seqRepo.Current(ctx, fam.Name, bucket)
	if err != nil {
		return "", fmt.Errorf("read %s counter: %w", fam.Name, err)
	}

	return fam.Format(bucket, current+1), nil
}

// Families lists the configured families
func (s *sequenceGeneratorImpl) Families() []entity.SequenceFamily {
	out := make([]entity.SequenceFamily, 0, len(s.families))
	for _, f := range s.families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolveFamily looks up a family and applies a stored width override when one is valid
func (s *sequenceGeneratorImpl) resolveFamily(ctx context.Context, name string) (entity.SequenceFamily, error) {
	fam, ok := s.families[entity.NormalizeCode(name)]
	if !ok {
		return entity.SequenceFamily{}, fmt.Errorf("%w: unknown sequence family %q", entity.ErrValidation, name)
	}

	if s.configRepo == nil {
		return fam, nil
	}

	stored, err := s.configRepo.Get(ctx, WidthConfigKey(fam.Name))
	if err != nil {
		s.logger.Error("Failed to read sequence width override, using configured width",
			"family", fam.Name, "error", err)
		return fam, nil
	}
	if stored == nil {
		return fam, nil
	}

	width, err := strconv.Atoi(stored.Value)
	if err != nil || width < entity.MinSequenceWidth || width > entity.MaxSequenceWidth {
		s.logger.Error("Ignoring invalid sequence width override",
			"family", fam.Name, "value", stored.Value, "configured_width", fam.Width)
		return fam, nil
	}

	fam.Width = width
	return fam, nil
}

func isRetryableAllocation(err error) bool {
	return errors.Is(err, entity.ErrStorageBusy) || errors.Is(err, errIdentifierCollision)
}
