// Package api exposes the simulator's query seam and control endpoints
// over HTTP and a WebSocket event stream, grounded on the teacher's
// cmd/settlement and cmd/gateway router wiring.
package api

import (
	"net/http"
	"sync"
	"time"

	"simcash/internal/cloudarchive"
	"simcash/internal/middleware"
	"simcash/internal/persistence/postgres"
	"simcash/internal/simcore"
	"simcash/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Server wires one running Simulation to the control plane. A single
// Server instance drives a single run; every tick is serialized through
// mu since simcore.Simulation is not safe for concurrent Tick calls.
type Server struct {
	mu  sync.Mutex
	sim *simcore.Simulation

	log            logger.Logger
	jwtSecret      string
	totpKey        string // base32 TOTP secret used for step-up confirmation
	operatorHash   []byte // bcrypt hash of the shared operator credential

	store    *postgres.Store        // nil when running without a configured database
	archiver *cloudarchive.Archiver // nil when no archive bucket is configured
	cache    readCache              // nil when running without a configured Redis cache
	runID    uuid.UUID
	nextSeq  int64

	cacheGeneration uint64

	hub *Hub
}

// Config bundles the dependencies NewServer wires together.
type Config struct {
	Simulation       *simcore.Simulation
	Logger           logger.Logger
	JWTSecret        string
	TOTPKey          string
	OperatorPassword string // plaintext credential, hashed once at startup
	Store            *postgres.Store
	Archiver         *cloudarchive.Archiver
	Cache            readCache
}

// NewServer constructs a Server bound to a live Simulation.
func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	var operatorHash []byte
	if cfg.OperatorPassword != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.OperatorPassword), bcrypt.DefaultCost)
		if err == nil {
			operatorHash = h
		}
	}
	return &Server{
		sim:          cfg.Simulation,
		log:          log,
		jwtSecret:    cfg.JWTSecret,
		totpKey:      cfg.TOTPKey,
		operatorHash: operatorHash,
		store:        cfg.Store,
		archiver:     cfg.Archiver,
		cache:        cfg.Cache,
		runID:        uuid.New(),
		hub:          newHub(),
	}
}

// Router builds the gorilla/mux router exposing every control-plane
// endpoint, with auth and logging middleware layered the way the
// teacher's service entry points do.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.NewLoggingMiddleware(s.log).Log)
	r.Use(middleware.CorrelationID)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/auth/token", s.handleIssueToken).Methods("POST")

	r.HandleFunc("/agents/{id}/balance", s.handleAgentBalance).Methods("GET")
	r.HandleFunc("/queue2", s.handleQueue2).Methods("GET")
	r.HandleFunc("/events", s.handleEvents).Methods("GET")
	r.HandleFunc("/stream", s.handleStream)

	authMW := middleware.NewAuthMiddleware(s.jwtSecret, nil)
	r.Handle("/tick", authMW.Authenticate(http.HandlerFunc(s.handleTick))).Methods("POST")
	r.Handle("/scenario-events", authMW.Authenticate(http.HandlerFunc(s.handleScenarioEvent))).Methods("POST")

	return r
}

// issueTOTPCode is a test/ops helper that generates the current step-up
// code for the configured secret; production operators generate theirs
// from an authenticator app enrolled against the same secret.
func (s *Server) issueTOTPCode() (string, error) {
	return totp.GenerateCode(s.totpKey, time.Now())
}

// verifyStepUp validates a TOTP code supplied in the X-Step-Up-Code
// header against the configured secret.
func (s *Server) verifyStepUp(code string) bool {
	if s.totpKey == "" {
		return true
	}
	ok, _ := totp.ValidateCustom(code, s.totpKey, time.Now(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	return ok
}

// checkOperatorPassword reports whether password matches the configured
// operator credential. With no credential configured (dev mode) every
// password is accepted.
func (s *Server) checkOperatorPassword(password string) bool {
	if len(s.operatorHash) == 0 {
		return true
	}
	return bcrypt.CompareHashAndPassword(s.operatorHash, []byte(password)) == nil
}

// issueToken signs a bearer JWT for an operator subject, optionally
// carrying a step-up claim once TOTP has been verified out of band.
func (s *Server) issueToken(subject string, stepUp bool) (string, error) {
	claims := jwt.MapClaims{
		"sub":     subject,
		"step_up": stepUp,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}
