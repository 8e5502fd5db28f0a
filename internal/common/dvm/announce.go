package dvm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"divine-dvm/internal/common/config"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/nostr"
	"divine-dvm/pkg/registry"
)

// DefaultDescriptor is the announcement content derived from configuration.
func DefaultDescriptor(svc config.ServiceConfig, defaultMaxResults int) registry.ServiceDescriptor {
	return registry.ServiceDescriptor{
		Name:    svc.Name,
		Picture: svc.PictureURL,
		About:   svc.About,
		Amount:  svc.Amount,
		NIP90Params: map[string]registry.ParamSpec{
			"max_results": {
				Required:    false,
				Values:      []string{},
				Description: fmt.Sprintf("Maximum number of videos to return (default: %d)", defaultMaxResults),
			},
		},
	}
}

// LoadDescriptor applies the optional override file on top of the
// configured defaults.
func LoadDescriptor(svc config.ServiceConfig, defaultMaxResults int) (registry.ServiceDescriptor, error) {
	def := DefaultDescriptor(svc, defaultMaxResults)
	if svc.DescriptorPath == "" {
		return def, nil
	}
	d, err := registry.LoadDescriptor(svc.DescriptorPath)
	if err != nil {
		return def, err
	}
	d.MergeDefaults(def)
	return *d, nil
}

// BuildAnnouncement returns the unsigned handler announcement declaring the
// request kinds the service answers.
func BuildAnnouncement(desc registry.ServiceDescriptor, identifier string, kinds ...int) (nostr.Event, error) {
	content, err := desc.JSON()
	if err != nil {
		return nostr.Event{}, fmt.Errorf("encode descriptor: %w", err)
	}
	tags := nostr.Tags{{"d", identifier}}
	for _, k := range kinds {
		tags = append(tags, nostr.Tag{"k", strconv.Itoa(k)})
	}
	return nostr.Event{
		Kind:    nostr.KindHandlerInformation,
		Content: content,
		Tags:    tags,
	}, nil
}

func BuildProfile(meta registry.ProfileMetadata) (nostr.Event, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return nostr.Event{}, fmt.Errorf("encode profile: %w", err)
	}
	return nostr.Event{Kind: nostr.KindProfileMetadata, Content: string(b)}, nil
}

// ProfileFromConfig maps service settings onto profile metadata.
func ProfileFromConfig(svc config.ServiceConfig) registry.ProfileMetadata {
	return registry.ProfileMetadata{
		Name:        svc.Name,
		DisplayName: svc.Name,
		About:       svc.About,
		Picture:     svc.PictureURL,
		NIP05:       svc.NIP05,
		LUD16:       svc.LUD16,
	}
}

// Announce publishes the handler announcement and, when enabled, the
// profile metadata. Both are attempted even if one fails.
func Announce(ctx context.Context, emitter *Emitter, cfg *config.Config, log logger.Logger) error {
	desc, err := LoadDescriptor(cfg.Service, cfg.Discovery.DefaultMaxResults)
	if err != nil {
		return fmt.Errorf("load descriptor: %w", err)
	}

	announcement, err := BuildAnnouncement(desc, cfg.Service.Identifier, nostr.KindContentDiscoveryRequest)
	if err != nil {
		return err
	}

	events := []nostr.Event{announcement}
	if cfg.Service.UpdateProfile {
		profile, err := BuildProfile(ProfileFromConfig(cfg.Service))
		if err != nil {
			return err
		}
		events = append(events, profile)
	}

	var g errgroup.Group
	for _, ev := range events {
		ev := ev
		g.Go(func() error {
			signed, err := emitter.Emit(ctx, ev)
			if err != nil {
				return fmt.Errorf("publish kind %d: %w", ev.Kind, err)
			}
			log.Info("published service metadata", map[string]interface{}{
				"kind":    signed.Kind,
				"eventId": signed.ID,
			})
			return nil
		})
	}
	return g.Wait()
}
