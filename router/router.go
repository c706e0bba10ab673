package router

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/vertamedia/vertamedia-pbs/adapters"
	"github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/endpoints"
	infoEndpoints "github.com/vertamedia/vertamedia-pbs/endpoints/info"
	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/exchange"
	metricsConf "github.com/vertamedia/vertamedia-pbs/metrics/config"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// NewJsonDirectoryServer is used to serve .json files from a directory as a single blob. For example,
// given a directory containing the files "a.json" and "b.json", this returns a Handle which serves JSON like:
//
//	{
//	  "a": { ... content from the file a.json ... },
//	  "b": { ... content from the file b.json ... }
//	}
//
// This function stores the file contents in memory, and should not be used on large directories.
// If the root directory, or any of the files in it, cannot be read, then the program will exit.
func NewJsonDirectoryServer(schemaDirectory string, validator openrtb_ext.BidderParamValidator) httprouter.Handle {
	// Slurp the files into memory first, since they're small and it minimizes request latency.
	files, err := ioutil.ReadDir(schemaDirectory)
	if err != nil {
		glog.Fatalf("Failed to read directory %s: %v", schemaDirectory, err)
	}

	data := make(map[string]json.RawMessage, len(files))
	for _, file := range files {
		bidder := strings.TrimSuffix(file.Name(), ".json")
		bidderName, isValid := openrtb_ext.GetBidderName(bidder)
		if !isValid {
			glog.Fatalf("Schema exists for an unknown bidder: %s", bidder)
		}
		data[bidder] = json.RawMessage(validator.Schema(bidderName))
	}

	response, err := json.Marshal(data)
	if err != nil {
		glog.Fatalf("Failed to marshal bidder param JSON-schema: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Add("Content-Type", "application/json")
		w.Write(response)
	}
}

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

type Router struct {
	*httprouter.Router
	MetricsEngine   *metricsConf.DetailedMetricsEngine
	ParamsValidator openrtb_ext.BidderParamValidator
	Shutdown        func()
}

func getTransport(cfg *config.Configuration, certPool *x509.CertPool) *http.Transport {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxConnsPerHost: cfg.Client.MaxConnsPerHost,
		IdleConnTimeout: time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
		TLSClientConfig: &tls.Config{RootCAs: certPool},
	}

	if cfg.Client.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Client.MaxIdleConns
	}

	if cfg.Client.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Client.MaxIdleConnsPerHost
	}

	return transport
}

func New(cfg *config.Configuration, version, revision string) (r *Router, err error) {
	r = &Router{
		Router:   httprouter.New(),
		Shutdown: func() {},
	}

	certPool, err := x509.SystemCertPool()
	if err != nil {
		glog.Warningf("Could not load the system root CAs, using Go's defaults: %v", err)
		certPool = nil
	}
	generalHttpClient := &http.Client{
		Transport: getTransport(cfg, certPool),
	}

	bidderList := openrtb_ext.CoreBidderNames()
	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, bidderList)

	r.ParamsValidator, err = openrtb_ext.NewBidderParamsValidator(cfg.BidderParamsDir)
	if err != nil {
		glog.Fatalf("Failed to create the bidder params validator. %v", err)
	}

	bidderInfos, err := adapters.ParseBidderInfos(cfg.BidderInfoDir, bidderList)
	if err != nil {
		glog.Fatal(err)
	}

	built, adaptersErrs := exchange.BuildAdapters(cfg)
	if len(adaptersErrs) > 0 {
		errs := errortypes.NewAggregateErrors("Failed to initialize adapters", adaptersErrs)
		glog.Fatalf("%v", errs)
	}
	bidders := exchange.AdaptBidders(built, generalHttpClient, bidderInfos, r.MetricsEngine)

	bidderEndpoints := endpoints.NewBidderEndpoints(built, bidders, r.ParamsValidator, r.MetricsEngine)
	r.POST("/bidders/:bidderName/requests", bidderEndpoints.Requests)
	r.POST("/bidders/:bidderName/bids", bidderEndpoints.Bids)
	r.POST("/bidders/:bidderName/auction", bidderEndpoints.Auction)
	r.GET("/bidders/params", NewJsonDirectoryServer(cfg.BidderParamsDir, r.ParamsValidator))
	r.GET("/info/bidders", infoEndpoints.NewBiddersEndpoint(cfg.ActiveBidders()))
	r.GET("/info/bidders/:bidderName", infoEndpoints.NewBidderDetailsEndpoint(bidderInfos))
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	r.HandlerFunc(http.MethodGet, "/version", endpoints.NewVersionEndpoint(version, revision))

	glog.Infof("Serving %d bidders: %v", len(built), cfg.ActiveBidders())
	return r, nil
}

// Admin returns the handler of the admin port.
func Admin(version, revision string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/version", endpoints.NewVersionEndpoint(version, revision))
	return mux
}

// SupportCORS lets pages on any origin call the bidder endpoints from the browser. Credentials are
// allowed so that header bidding wrappers which always send them are not rejected.
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}

// RateLimit caps the requests each client IP may send per second. A zero limit returns the handler unchanged.
func RateLimit(cfg config.RateLimit, handler http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return handler
	}
	lmt := tollbooth.NewLimiter(cfg.RequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Duration(cfg.TTLSeconds) * time.Second,
	})
	lmt.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(`{"errors":["too many requests"]}`)
	return tollbooth.LimitHandler(lmt, handler)
}
