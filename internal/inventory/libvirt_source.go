package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmwatch/internal/blocks"
	vmwatchlibvirt "github.com/jbweber/vmwatch/internal/libvirt"
)

// libvirtClient defines the libvirt operations needed to take a snapshot.
// In production, this is satisfied by *libvirt.Libvirt directly.
type libvirtClient interface {
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error)
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
}

// LibvirtSource snapshots the domains of a local libvirt daemon and renders
// them as an xe-style report, so the same parser and rules apply to both
// XenServer and KVM hosts.
type LibvirtSource struct {
	SocketPath string
	Timeout    time.Duration

	// Rules supply the field keys written into the report.
	Rules Rules

	Logger *slog.Logger
}

// Fetch connects, lists all domains (active and inactive), and disconnects.
func (s *LibvirtSource) Fetch(ctx context.Context) (string, error) {
	client, err := vmwatchlibvirt.ConnectWithContext(ctx, s.SocketPath, s.Timeout)
	if err != nil {
		return "", inputError("failed to connect to libvirt", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.logger().Warn("failed to close libvirt connection", "error", err)
		}
	}()

	return s.fetchWithDeps(ctx, client.Libvirt())
}

// fetchWithDeps renders the report from an injected client.
func (s *LibvirtSource) fetchWithDeps(_ context.Context, lv libvirtClient) (string, error) {
	// NeedResults: 1 populates the slice; flags 0 selects active and inactive
	domains, _, err := lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return "", inputError("failed to list domains", err)
	}

	rules := s.Rules
	if rules.IdentityKey == "" {
		rules = DefaultRules()
	}

	records := make([]blocks.Record, 0, len(domains))
	for _, dom := range domains {
		rec, err := domainRecord(lv, dom, rules)
		if libvirt.IsNotFound(err) {
			// Undefined between the list and the state call
			s.logger().Debug("skipping vanished domain", "domain", dom.Name)
			continue
		}
		if err != nil {
			return "", inputError(fmt.Sprintf("failed to read domain %s", dom.Name), err)
		}
		records = append(records, rec)
	}

	// A host with no domains is an empty snapshot, not a failed fetch
	if len(records) == 0 {
		return "", nil
	}

	return blocks.Format(records, rules.Keys()), nil
}

// domainRecord reads one domain into a report record.
func domainRecord(lv libvirtClient, dom libvirt.Domain, rules Rules) (blocks.Record, error) {
	state, _, err := lv.DomainGetState(dom, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain state: %w", err)
	}

	identity := uuid.UUID(dom.UUID).String()
	name := dom.Name

	// The title is the operator-facing label when the domain sets one
	xmlDesc, err := lv.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
	if err == nil {
		var desc libvirtxml.Domain
		if err := desc.Unmarshal(xmlDesc); err == nil {
			if desc.UUID != "" {
				identity = desc.UUID
			}
			if desc.Title != "" {
				name = desc.Title
			}
		}
	}

	return blocks.Record{
		rules.IdentityKey: identity,
		rules.NameKey:     name,
		rules.StateKey:    PowerState(state),
	}, nil
}

// PowerState maps a libvirt domain state onto the xe power-state vocabulary.
func PowerState(state int32) string {
	switch libvirt.DomainState(state) {
	case libvirt.DomainRunning, libvirt.DomainBlocked:
		return "running"
	case libvirt.DomainPaused:
		return "paused"
	case libvirt.DomainShutdown:
		return "shutting-down"
	case libvirt.DomainShutoff:
		return "halted"
	case libvirt.DomainCrashed:
		return "crashed"
	case libvirt.DomainPmsuspended:
		return "suspended"
	case libvirt.DomainNostate:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

func (s *LibvirtSource) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
