// Package dns answers A queries for the fixed hostnames of the cell so nodes on the access point can
// find each other by name
package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/metrics"
)

type Config struct {
	Addr    string            `yaml:"addr"`
	TTL     uint32            `yaml:"ttl"`
	Records map[string]string `yaml:"records"`
}

// DefaultConfig maps the node hostnames to their static access-point addresses
func DefaultConfig() Config {
	return Config{
		Addr: ":53",
		TTL:  60,
		Records: map[string]string{
			sortcell.SensorsHost: "192.168.4.3",
			sortcell.MotorsHost:  "192.168.4.4",
			sortcell.ProcessHost: "192.168.4.2",
		},
	}
}

// Server is a dns.Handler for the static records
type Server struct {
	addr    string
	ttl     uint32
	records map[string]net.IP
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ dns.Handler = &Server{}

func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	s := &Server{
		addr:    cfg.Addr,
		ttl:     cfg.TTL,
		records: map[string]net.IP{},
		logger:  logger,
		metrics: m,
	}

	for name, addr := range cfg.Records {
		ip := net.ParseIP(addr).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q for %q", addr, name)
		}
		s.records[dns.Fqdn(strings.ToLower(name))] = ip
	}
	return s, nil
}

// Resolve looks up a name with or without the trailing dot
func (s *Server) Resolve(name string) (net.IP, bool) {
	ip, ok := s.records[dns.Fqdn(strings.ToLower(name))]
	return ip, ok
}

// ServeDNS answers A and ANY questions for known names. Any other type for a known name gets an empty
// answer and an unknown name gets NXDOMAIN
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	known := false
	for _, q := range r.Question {
		ip, ok := s.Resolve(q.Name)
		if !ok {
			continue
		}
		known = true

		if q.Qclass != dns.ClassINET && q.Qclass != dns.ClassANY {
			continue
		}
		if q.Qtype != dns.TypeA && q.Qtype != dns.TypeANY {
			continue
		}
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    s.ttl,
			},
			A: ip,
		})
	}

	switch {
	case r.Opcode != dns.OpcodeQuery:
		m.Rcode = dns.RcodeNotImplemented
	case !known:
		m.Rcode = dns.RcodeNameError
	}

	rcode := dns.RcodeToString[m.Rcode]
	s.metrics.DNSQueries.WithLabelValues(rcode).Inc()
	s.logger.Debug("answered query", "questions", len(r.Question), "answers", len(m.Answer), "rcode", rcode, "remote", w.RemoteAddr())

	err := w.WriteMsg(m)
	if err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

// ListenAndServe serves UDP and TCP on the configured address until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	udp := &dns.Server{Addr: s.addr, Net: "udp", Handler: s}
	tcp := &dns.Server{Addr: s.addr, Net: "tcp", Handler: s}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wrap("udp", udp.ListenAndServe())
	})
	g.Go(func() error {
		return wrap("tcp", tcp.ListenAndServe())
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = udp.ShutdownContext(context.WithoutCancel(ctx))
		_ = tcp.ShutdownContext(context.WithoutCancel(ctx))
		return nil
	})

	s.logger.Info("serving DNS", "addr", s.addr, "records", len(s.records))
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func wrap(network string, err error) error {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return fmt.Errorf("error serving %s: %w", network, err)
}
