package service

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

// ManifestStore reads and writes deployment manifests in the
// configuration repository checkout.
type ManifestStore interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte) error
}

type ManifestPromotionService interface {
	// PromoteAll performs the two-tier promotion for every component:
	// the image currently referenced by the canary manifest becomes the
	// stable image, and the freshly built image becomes the new canary.
	//
	// Every canary manifest is read before any manifest is written.
	// Reversing that order would promote the image built in this very
	// run and silently collapse the one-run canary lag, so the ordering
	// is a correctness requirement, not a style choice.
	//
	// Promotion is unconditional: no health signal or soak check gates
	// the transition. The canary soaks for exactly the time between two
	// runs. Do not strengthen this here; a health-gated promoter would
	// be a new, separately configured implementation of this interface.
	PromoteAll(store ManifestStore, components []config.Component, manifestDir string, buildID uint64) ([]domain.ManifestDelta, []domain.PromotionRecord, error)

	// Apply re-applies previously captured deltas to a fresh checkout.
	// The committer uses it after a push conflict instead of re-running
	// the pipeline.
	Apply(store ManifestStore, deltas []domain.ManifestDelta) error
}

type manifestPromotionService struct {
	logger zerolog.Logger
}

func NewManifestPromotionService(logger *zerolog.Logger) ManifestPromotionService {
	return &manifestPromotionService{
		logger: logger.With().Str("component", "ManifestPromotionService").Logger(),
	}
}

// ManifestPath names the manifest file for a component and tier.
func ManifestPath(manifestDir, component string, tier domain.Tier) string {
	tierStr, _ := tier.String()
	return path.Join(manifestDir, component+"-"+tierStr+".yaml")
}

func (self *manifestPromotionService) PromoteAll(store ManifestStore, components []config.Component, manifestDir string, buildID uint64) ([]domain.ManifestDelta, []domain.PromotionRecord, error) {
	type promotion struct {
		component   domain.Component
		priorCanary domain.ImageReference
		priorStable domain.ImageReference
	}

	// First pass: read the current canary and stable references of
	// every component. No write happens until all reads are done.
	promotions := make([]promotion, 0, len(components))
	for _, component := range components {
		domainComponent := domain.Component{
			Name:            component.Name,
			SourcePath:      component.SourcePath,
			ImageRepository: component.ImageRepository,
		}

		priorCanary, err := self.readImage(store, ManifestPath(manifestDir, component.Name, domain.TierCanary))
		if err != nil {
			return nil, nil, domain.PromotionFailure{Component: component.Name, Reason: err.Error()}
		}
		priorStable, err := self.readImage(store, ManifestPath(manifestDir, component.Name, domain.TierStable))
		if err != nil {
			return nil, nil, domain.PromotionFailure{Component: component.Name, Reason: err.Error()}
		}

		promotions = append(promotions, promotion{domainComponent, priorCanary, priorStable})
	}

	deltas := make([]domain.ManifestDelta, 0, 2*len(promotions))
	records := make([]domain.PromotionRecord, 0, len(promotions))
	now := time.Now().UTC()

	// Second pass: promote every stable manifest to the captured
	// canary reference.
	for _, promotion := range promotions {
		delta := domain.ManifestDelta{
			Component: promotion.component,
			Tier:      domain.TierStable,
			Path:      ManifestPath(manifestDir, promotion.component.Name, domain.TierStable),
			Image:     promotion.priorCanary,
		}
		if err := self.writeImage(store, delta.Path, delta.Image); err != nil {
			return nil, nil, domain.PromotionFailure{Component: promotion.component.Name, Reason: err.Error()}
		}
		deltas = append(deltas, delta)
	}

	// Third pass: point every canary manifest at the image built in
	// this run.
	for _, promotion := range promotions {
		newCanary := domain.NewImageReference(promotion.component, buildID)
		delta := domain.ManifestDelta{
			Component: promotion.component,
			Tier:      domain.TierCanary,
			Path:      ManifestPath(manifestDir, promotion.component.Name, domain.TierCanary),
			Image:     newCanary,
		}
		if err := self.writeImage(store, delta.Path, delta.Image); err != nil {
			return nil, nil, domain.PromotionFailure{Component: promotion.component.Name, Reason: err.Error()}
		}
		deltas = append(deltas, delta)

		records = append(records, domain.PromotionRecord{
			Component:           promotion.component.Name,
			PreviousStableImage: promotion.priorStable.String(),
			NewStableImage:      promotion.priorCanary.String(),
			NewCanaryImage:      newCanary.String(),
			BuildID:             buildID,
			Timestamp:           now,
		})

		self.logger.Info().
			Str("component", promotion.component.Name).
			Stringer("stable", promotion.priorCanary).
			Stringer("canary", newCanary).
			Msg("Promoted")
	}

	return deltas, records, nil
}

func (self *manifestPromotionService) Apply(store ManifestStore, deltas []domain.ManifestDelta) error {
	for _, delta := range deltas {
		if err := self.writeImage(store, delta.Path, delta.Image); err != nil {
			return domain.PromotionFailure{Component: delta.Component.Name, Reason: err.Error()}
		}
	}
	return nil
}

// Every manifest exposes exactly one greppable line of the form
// "image: <repository>:<tag>" so it can be located and rewritten
// without parsing the rest of the file.
var imageLinePattern = regexp.MustCompile(`(?m)^([ \t]*image:[ \t]*)(\S+)[ \t]*$`)

func (self *manifestPromotionService) readImage(store ManifestStore, path string) (ref domain.ImageReference, err error) {
	content, err := store.ReadFile(path)
	if err != nil {
		return
	}
	return ParseImageLine(content)
}

func (self *manifestPromotionService) writeImage(store ManifestStore, path string, ref domain.ImageReference) error {
	content, err := store.ReadFile(path)
	if err != nil {
		return err
	}

	rewritten, err := RewriteImageLine(content, ref)
	if err != nil {
		return err
	}

	// Byte-identical content is written anyway; git sees no change,
	// which keeps a repeated promotion idempotent.
	return store.WriteFile(path, rewritten)
}

func ParseImageLine(content []byte) (ref domain.ImageReference, err error) {
	match := imageLinePattern.FindSubmatch(content)
	if match == nil {
		err = errors.New("Manifest has no image line")
		return
	}

	image := string(match[2])
	colon := strings.LastIndex(image, ":")
	if colon < 0 {
		err = errors.Errorf("Image reference %q has no tag", image)
		return
	}

	ref.Repository = image[:colon]
	ref.Tag = image[colon+1:]
	return
}

func RewriteImageLine(content []byte, ref domain.ImageReference) ([]byte, error) {
	if imageLinePattern.Find(content) == nil {
		return nil, errors.New("Manifest has no image line")
	}

	replaced := false
	rewritten := imageLinePattern.ReplaceAllFunc(content, func(line []byte) []byte {
		if replaced {
			return line
		}
		replaced = true
		prefix := imageLinePattern.FindSubmatch(line)[1]
		return append(append([]byte{}, prefix...), []byte(ref.String())...)
	})

	return rewritten, nil
}
