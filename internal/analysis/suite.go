package analysis

import (
	"context"
	"log/slog"

	"sitepulse/internal/resilience"
)

// Suite holds one task per kind
type Suite struct {
	Performance *Task[PerformanceResult]
	Monitor     *Task[MonitorResult]
	SSL         *Task[SSLResult]
	DNS         *Task[DNSResult]
	Sitemap     *Task[SitemapResult]
	API         *Task[APIProbeResult]
	Links       *Task[LinkCheckResult]
	Typography  *Task[TypographyResult]

	runners map[Kind]Runner
}

// SuiteConfig wires the shared collaborators of every task
type SuiteConfig struct {
	Client   *Client
	Notifier Notifier
	Logger   *slog.Logger
	// ExecutorOptions are applied to the executor of each task
	ExecutorOptions []resilience.ExecutorOption
}

// NewSuite builds the eight tasks, each with its own executor
func NewSuite(cfg SuiteConfig) *Suite {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	opts := func() []TaskOption {
		execOpts := append([]resilience.ExecutorOption{resilience.WithLogger(logger)}, cfg.ExecutorOptions...)
		return []TaskOption{
			WithExecutor(resilience.NewExecutor(execOpts...)),
			WithNotifier(notifier),
			WithTaskLogger(logger),
		}
	}

	s := &Suite{
		Performance: NewTask(KindPerformance, fetcher[PerformanceResult](cfg.Client, KindPerformance), opts()...),
		Monitor:     NewTask(KindMonitor, fetcher[MonitorResult](cfg.Client, KindMonitor), opts()...),
		SSL:         NewTask(KindSSL, fetcher[SSLResult](cfg.Client, KindSSL), opts()...),
		DNS:         NewTask(KindDNS, fetcher[DNSResult](cfg.Client, KindDNS), opts()...),
		Sitemap:     NewTask(KindSitemap, fetcher[SitemapResult](cfg.Client, KindSitemap), opts()...),
		API:         NewTask(KindAPI, fetcher[APIProbeResult](cfg.Client, KindAPI), opts()...),
		Links:       NewTask(KindLinks, fetcher[LinkCheckResult](cfg.Client, KindLinks), opts()...),
		Typography:  NewTask(KindTypography, fetcher[TypographyResult](cfg.Client, KindTypography), opts()...),
	}
	s.runners = map[Kind]Runner{
		KindPerformance: s.Performance.Runner(),
		KindMonitor:     s.Monitor.Runner(),
		KindSSL:         s.SSL.Runner(),
		KindDNS:         s.DNS.Runner(),
		KindSitemap:     s.Sitemap.Runner(),
		KindAPI:         s.API.Runner(),
		KindLinks:       s.Links.Runner(),
		KindTypography:  s.Typography.Runner(),
	}
	return s
}

// Runner returns the task for kind
func (s *Suite) Runner(kind Kind) (Runner, bool) {
	r, ok := s.runners[kind]
	return r, ok
}

// Runners returns every task keyed by kind
func (s *Suite) Runners() map[Kind]Runner {
	out := make(map[Kind]Runner, len(s.runners))
	for k, r := range s.runners {
		out[k] = r
	}
	return out
}

func fetcher[T any](c *Client, kind Kind) FetchFunc[T] {
	return func(ctx context.Context, subject string) (T, error) {
		return Fetch[T](ctx, c, kind, subject)
	}
}
