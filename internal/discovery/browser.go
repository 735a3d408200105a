package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/enbility/zeroconf/v3"
)

// Default browse parameters.
const (
	DefaultService = "_http._tcp"
	DefaultDomain  = "local."

	instancePrefix = "refoss"
)

// ErrInterfaceNotFound is returned when the configured interface does not exist.
var ErrInterfaceNotFound = errors.New("discovery: interface not found")

// Service is a discovered device.
type Service struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
}

// Address returns the preferred address to reach the device: the first
// resolved IP, or the advertised host name.
func (s Service) Address() string {
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return strings.TrimSuffix(s.Host, ".")
}

// Config controls a Browser.
type Config struct {
	Service   string
	Domain    string
	Interface string
}

// Logger is the logging surface the browser needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

type browseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// Browser browses mDNS for Refoss devices.
type Browser struct {
	cfg    Config
	logger Logger
	browse browseFunc
}

// NewBrowser creates a browser, filling empty Config fields with defaults.
func NewBrowser(cfg Config) *Browser {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	return &Browser{cfg: cfg, logger: noopLogger{}, browse: zeroconf.Browse}
}

// SetLogger sets the logger.
func (b *Browser) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	b.logger = l
}

// Browse reports each discovered device to found until ctx is cancelled.
// found is called from a single goroutine.
func (b *Browser) Browse(ctx context.Context, found func(Service)) error {
	opts, err := b.options()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseErr := make(chan error, 1)
	go func() {
		browseErr <- b.browse(ctx, b.cfg.Service, b.cfg.Domain, entries, removed, opts...)
	}()

	b.logger.Info("mDNS browse started", "service", b.cfg.Service, "domain", b.cfg.Domain)

	seen := make(map[string]Service)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-browseErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("browsing %s: %w", b.cfg.Service, err)
			}
			return nil
		case entry := <-removed:
			if entry != nil {
				delete(seen, entry.Instance)
			}
		case entry := <-entries:
			svc, ok := FromEntry(entry)
			if !ok {
				continue
			}
			if prev, known := seen[svc.Instance]; known {
				prev.Addresses = mergeAddresses(prev.Addresses, svc.Addresses)
				seen[svc.Instance] = prev
				continue
			}
			seen[svc.Instance] = svc
			b.logger.Debug("discovered device", "instance", svc.Instance, "address", svc.Address())
			found(svc)
		}
	}
}

func (b *Browser) options() ([]zeroconf.ClientOption, error) {
	if b.cfg.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(b.cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, b.cfg.Interface)
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*iface})}, nil
}

// FromEntry converts a zeroconf entry into a Service. Entries that are not
// Refoss devices report false.
func FromEntry(entry *zeroconf.ServiceEntry) (Service, bool) {
	if entry == nil || !strings.HasPrefix(strings.ToLower(entry.Instance), instancePrefix) {
		return Service{}, false
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return Service{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
	}, true
}

func mergeAddresses(existing, more []string) []string {
	for _, a := range more {
		found := false
		for _, e := range existing {
			if e == a {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, a)
		}
	}
	return existing
}
