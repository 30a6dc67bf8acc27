package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/time/rate"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/auth"
	"github.com/Louis-MaD/FamilyVault/internal/sharing"
	"github.com/Louis-MaD/FamilyVault/internal/storage"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

type Server struct {
	cfg Config

	mux    *http.ServeMux
	logger *log.Logger
	signer *auth.JWTSigner

	users   auth.UserStore
	gate    *auth.Gate
	items   *vault.Service
	sharing *sharing.Service
	admin   *auth.AdminService
	blobs   storage.BlobStore
	trail   audit.Sink

	mongoClient *mongo.Client

	mu     sync.Mutex
	challs map[string]*twoFAChallenge

	rlLoginIP       *multiLimiter
	rlLoginID       *multiLimiter
	rlTotpIP        *multiLimiter
	rlTotpChallenge *multiLimiter
}

// New wires the mongo-backed server. Everything hangs off one client; the
// signing key is generated per process, so tokens do not survive a restart.
func New(ctx context.Context, cfg Config) (*Server, error) {
	cfg.setDefaults()
	if cfg.MongoURI == "" {
		return nil, errors.New("server: MongoURI required")
	}
	if cfg.MongoDB == "" {
		return nil, errors.New("server: MongoDB required")
	}

	logger := log.New(os.Stdout, "[vaultd] ", log.LstdFlags|log.Lshortfile)

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	db := cli.Database(cfg.MongoDB)

	users, err := auth.NewMongoUserStore(ctx, db, cfg.UsersCollection)
	if err != nil {
		return nil, err
	}
	items, err := vault.NewMongoStore(ctx, db, cfg.ItemsCollection)
	if err != nil {
		return nil, err
	}
	shareStore, err := sharing.NewMongoStore(ctx, db, cfg.RequestsCollection, cfg.GrantsCollection)
	if err != nil {
		return nil, err
	}
	sink, err := audit.NewMongoSink(ctx, db, cfg.AuditCollection, logger)
	if err != nil {
		return nil, err
	}
	trail := audit.Fanout{audit.NewChainLog(), sink}

	var blobs storage.BlobStore
	if cfg.BlobDir != "" {
		blobs, err = storage.NewFileBlobStore(cfg.BlobDir)
		if err != nil {
			return nil, err
		}
	} else {
		blobs = storage.NewMongoBlobStore(db, cfg.BlobsCollection)
	}

	s := newServer(cfg, logger, users, items, shareStore, blobs, trail)
	s.mongoClient = cli
	return s, nil
}

// newServer assembles the handler graph from ready-made stores. Tests use it
// directly with the in-memory implementations.
func newServer(cfg Config, logger *log.Logger, users auth.UserStore, items vault.Store, shareStore sharing.Store, blobs storage.BlobStore, trail audit.Sink) *Server {
	cfg.setDefaults()
	priv, _, err := auth.GenerateEd25519()
	if err != nil {
		// rand.Reader failing means the process cannot do anything useful.
		panic(err)
	}
	gate := auth.NewGate(users)

	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  logger,
		signer:  auth.NewJWTSigner(priv, cfg.JWTIssuer, cfg.TokenTTL),
		users:   users,
		gate:    gate,
		items:   vault.NewService(items, gate, trail),
		sharing: sharing.NewService(shareStore, items, users, trail),
		admin:   auth.NewAdminService(users, trail),
		blobs:   blobs,
		trail:   trail,
		challs:  map[string]*twoFAChallenge{},
	}

	perWindow := func(n int, window time.Duration) float64 { return float64(n) / window.Seconds() }
	s.rlLoginIP = newMultiLimiter(rate.Limit(perWindow(10, time.Minute)), 10, time.Hour)
	s.rlLoginID = newMultiLimiter(rate.Limit(perWindow(5, time.Minute)), 5, time.Hour)
	s.rlTotpIP = newMultiLimiter(rate.Limit(perWindow(10, time.Minute)), 10, 10*time.Minute)
	s.rlTotpChallenge = newMultiLimiter(rate.Limit(perWindow(3, time.Minute)), 3, 10*time.Minute)

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Printf("panic: %v", rec)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	s.addDefaultHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	r = r.WithContext(audit.WithIP(r.Context(), getClientIP(r)))

	path := r.URL.Path
	if strings.HasPrefix(path, "/api/") && !s.isPublic(path) {
		auth.AuthRequired(s.signer)(s.mux).ServeHTTP(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler { return s }

func (s *Server) Close(ctx context.Context) error {
	if s.mongoClient != nil {
		return s.mongoClient.Disconnect(ctx)
	}
	return nil
}

func (s *Server) isPublic(path string) bool {
	switch path {
	case "/health", "/api/health", "/api/signup", "/api/login", "/api/login/verify":
		return true
	default:
		return false
	}
}

func (s *Server) addDefaultHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
}
