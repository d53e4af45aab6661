package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/RIPE-NCC/rpki-commons-sub001/ov"
	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/RIPE-NCC/rpki-commons-sub001/validator/pki"
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	jcfg "github.com/uber/jaeger-client-go/config"
)

var (
	AppVersion = "dev"

	TAL     = flag.String("tal", "", "Trust anchor locator file")
	Root    = flag.String("root", "", "Trust anchor certificate (rsync URI or local file) used instead of a TAL")
	TAName  = flag.String("tal.name", "", "Name of the trust anchor in outputs")
	MapDir  = flag.String("map.dir", "rsync://rpki.ripe.net/repository/=./rpki.ripe.net/repository/", "Map of the paths separated by commas")
	Options = flag.String("options", "", "Validation options (YAML)")

	LogLevel = flag.String("loglevel", "info", "Log level")

	OutputReport     = flag.String("output.report", "", "Validation report file (- for stdout)")
	OutputROA        = flag.String("output.roa", "output.json", "Output ROA file (GoRTR compatible)")
	OutputMetrics    = flag.String("output.metrics", "", "Prometheus textfile")
	ValidityDuration = flag.Duration("output.roa.validity", time.Hour, "Validity of the ROA file")

	FilterASNs     = flag.String("filter.asn", "", "Only output ROAs for these ASNs, separated by commas")
	FilterPrefixes = flag.String("filter.prefix", "", "Only output ROAs within these prefixes, separated by commas")
	Route          = flag.String("route", "", "Validate a route origin, as prefix,ASN")

	Tracer    = flag.Bool("tracer", false, "Enable tracer")
	SentryDSN = flag.String("sentry.dsn", "", "Send errors to Sentry")

	Version = flag.Bool("version", false, "Print version")
)

var (
	MetricExplored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpki_objects_explored",
			Help: "Objects explored during the last validation.",
		},
	)
	MetricValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rpki_objects_valid",
			Help: "Valid objects, by type.",
		},
		[]string{"type"},
	)
	MetricROAsCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpki_vrps",
			Help: "Validated ROA payloads.",
		},
	)
	MetricOperationTime = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "rpki_operation_time",
			Help:       "Time spent per operation.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"type"},
	)
)

// Validation holds one run over a local mirror.
type Validation struct {
	Manager  *pki.SimpleManager
	Counter  *pki.CheckCounter
	Registry *prometheus.Registry
	Clock    clockwork.Clock
	TAName   string
	Explored int

	tracer opentracing.Tracer
}

func NewValidation(seeker pki.FileSeeker, options librpki.ValidationOptions, clock clockwork.Clock) (*Validation, error) {
	registry := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{MetricExplored, MetricValid, MetricROAsCount, MetricOperationTime} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	counter, err := pki.NewPrometheusObserver(registry)
	if err != nil {
		return nil, err
	}

	validator := pki.NewResourceCertificateValidator(options, pki.NewLocalCRLLocator(seeker))
	validator.Clock = clock
	manager := pki.NewSimpleManager(seeker, validator)
	counter.Attach(manager.Result)

	return &Validation{
		Manager:  manager,
		Counter:  counter,
		Registry: registry,
		Clock:    clock,
		tracer:   opentracing.GlobalTracer(),
	}, nil
}

func (v *Validation) AddTAL(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading TAL %s", path)
	}
	tal, err := librpki.DecodeTAL(data)
	if err != nil {
		return errors.Wrapf(err, "decoding TAL %s", path)
	}
	return v.Manager.AddTAL(tal)
}

// Run explores the repository and returns the validated payloads.
func (v *Validation) Run(pSpan opentracing.Span) []ov.VRP {
	span := v.tracer.StartSpan("validation", opentracing.ChildOf(pSpan.Context()))
	defer span.Finish()
	t1 := v.Clock.Now()

	tSpan := v.tracer.StartSpan("explore", opentracing.ChildOf(span.Context()))
	explored := v.Manager.Explore()
	v.Explored += explored
	tSpan.SetTag("explored", explored)
	tSpan.SetTag("errors", len(v.Manager.Errors))
	tSpan.Finish()

	MetricExplored.Set(float64(explored))
	valid := make(map[int]int)
	for _, res := range v.Manager.Valid {
		valid[res.Type]++
	}
	for t, count := range valid {
		MetricValid.With(prometheus.Labels{"type": pki.TypeToName[t]}).Set(float64(count))
	}

	eSpan := v.tracer.StartSpan("extract", opentracing.ChildOf(span.Context()))
	vrps := ValidatedPayloads(v.Manager)
	eSpan.SetTag("vrps", len(vrps))
	eSpan.Finish()
	MetricROAsCount.Set(float64(len(vrps)))

	MetricOperationTime.With(prometheus.Labels{"type": "validation"}).Observe(float64(v.Clock.Since(t1).Seconds()))
	log.Infof("Explored %d objects, %d valid, %d errors, %d VRPs", explored, len(v.Manager.Valid), len(v.Manager.Errors), len(vrps))
	return vrps
}

func (v *Validation) ReportErrors() {
	for _, err := range v.Manager.Errors {
		log.Debug(err)
		sentry.WithScope(func(scope *sentry.Scope) {
			if errC, ok := err.(interface{ SetSentryScope(*sentry.Scope) }); ok {
				errC.SetSentryScope(scope)
			}
			scope.SetTag("TrustAnchor", v.TAName)
			sentry.CaptureException(err)
		})
	}
}

func writeJSON(path string, data interface{}) error {
	var buf io.Writer
	if path == "-" {
		buf = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		buf = f
	}
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (v *Validation) WriteOutputs(pSpan opentracing.Span, vrps []ov.VRP, asns []uint32) error {
	span := v.tracer.StartSpan("output", opentracing.ChildOf(pSpan.Context()))
	defer span.Finish()
	now := v.Clock.Now()

	if *OutputReport != "" {
		report := BuildReport(v.Manager, v.TAName, v.Explored, now)
		if err := writeJSON(*OutputReport, report); err != nil {
			return errors.Wrap(err, "writing report")
		}
	}

	if *OutputROA != "" {
		prefixes, err := ParsePrefixList(*FilterPrefixes)
		if err != nil {
			return err
		}
		roalist := GenerateROAList(vrps, v.TAName, now, *ValidityDuration)
		roalist.Data = FilterPrefix(FilterASN(roalist.Data, asns), prefixes)
		roalist.Metadata.Counts = len(roalist.Data)
		if err := writeJSON(*OutputROA, roalist); err != nil {
			return errors.Wrap(err, "writing ROAs")
		}
		log.Infof("Wrote %d ROAs to %v", len(roalist.Data), *OutputROA)
	}

	if *OutputMetrics != "" {
		if err := prometheus.WriteToTextfile(*OutputMetrics, v.Registry); err != nil {
			return errors.Wrap(err, "writing metrics")
		}
	}
	return nil
}

func ParseRouteFlag(value string) (ov.Route, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return ov.Route{}, errors.Errorf("route %q is not prefix,ASN", value)
	}
	asn, err := ParseASN(parts[1])
	if err != nil {
		return ov.Route{}, err
	}
	route, err := ov.ParseRoute(strings.TrimSpace(parts[0]), asn)
	return route, errors.Wrapf(err, "route %q", value)
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	flag.Parse()
	if *Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}

	lvl, _ := log.ParseLevel(*LogLevel)
	log.SetLevel(lvl)

	sentryDsn := *SentryDSN
	if sentryDsn == "" {
		sentryDsn = os.Getenv("SENTRY_DSN")
	}
	if sentryDsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn: sentryDsn,
		})
		if err != nil {
			log.Fatalf("failed initializing sentry: %s", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if *Tracer {
		cfg, err := jcfg.FromEnv()
		if err != nil {
			log.Fatal(err)
		}
		if cfg.ServiceName == "" {
			cfg.ServiceName = "rpkivalidate"
		}
		tracer, closer, err := cfg.NewTracer()
		if err != nil {
			log.Fatal(err)
		}
		defer closer.Close()
		opentracing.SetGlobalTracer(tracer)
	}

	if (*TAL == "") == (*Root == "") {
		log.Fatal("Exactly one of -tal and -root is required")
	}

	options := librpki.DefaultValidationOptions()
	if *Options != "" {
		var err error
		options, err = librpki.LoadValidationOptions(*Options)
		if err != nil {
			log.Fatal(err)
		}
	}

	asns, err := ParseASNList(*FilterASNs)
	if err != nil {
		log.Fatal(err)
	}

	log.Info("Validator started")
	fetch := pki.NewLocalFetch(pki.ParseMapDirectory(*MapDir))
	v, err := NewValidation(fetch, options, clockwork.NewRealClock())
	if err != nil {
		log.Fatal(err)
	}
	v.TAName = *TAName

	if *TAL != "" {
		if v.TAName == "" {
			v.TAName = *TAL
		}
		if err := v.AddTAL(*TAL); err != nil {
			log.Fatal(err)
		}
	} else {
		if v.TAName == "" {
			v.TAName = *Root
		}
		v.Manager.AddRoot(*Root)
	}

	span := opentracing.GlobalTracer().StartSpan("operation")
	span.SetTag("ta", v.TAName)
	vrps := v.Run(span)
	v.ReportErrors()
	if err := v.WriteOutputs(span, vrps, asns); err != nil {
		span.Finish()
		log.Fatal(err)
	}

	if *Route != "" {
		route, err := ParseRouteFlag(*Route)
		if err != nil {
			span.Finish()
			log.Fatal(err)
		}
		out, err := ValidateRoute(vrps, route)
		if err != nil {
			span.Finish()
			log.Fatal(err)
		}
		if err := writeJSON("-", out); err != nil {
			log.Error(err)
		}
	}
	span.Finish()
}
