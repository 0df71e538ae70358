package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"scrum-board/activity"
	"scrum-board/api"
	"scrum-board/domain"
	"scrum-board/storage"
	"scrum-board/subscription"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("unable to load .env")
	}
	if envBool("DEBUG") {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tables := storage.Tables{
		Teams:       os.Getenv("TEAMS_TABLE"),
		Memberships: os.Getenv("MEMBERSHIPS_TABLE"),
		Lists:       os.Getenv("LISTS_TABLE"),
		Cards:       os.Getenv("CARDS_TABLE"),
		Comments:    os.Getenv("COMMENTS_TABLE"),
		Sprints:     os.Getenv("SPRINTS_TABLE"),
		Activities:  os.Getenv("ACTIVITIES_TABLE"),
		Users:       os.Getenv("USERS_TABLE"),
	}
	activityQueue := os.Getenv("ACTIVITY_QUEUE")
	if connStr == "" || activityQueue == "" || tables.Teams == "" || tables.Memberships == "" || tables.Lists == "" ||
		tables.Cards == "" || tables.Comments == "" || tables.Sprints == "" || tables.Activities == "" || tables.Users == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tables, activityQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(parseRedisOptions(redisConn))
	updatesChannel := envStr("BOARD_UPDATES_CHANNEL", "board-updates")
	cache := storage.NewCache(store, rc, envDur("BOARD_CACHE_TTL", 10*time.Minute), updatesChannel)

	mode, err := domain.ParseMoveMode(os.Getenv("MOVE_MODE"))
	if err != nil {
		log.Fatalf("MOVE_MODE: %v", err)
	}
	engine := domain.NewReorderEngine(cache, mode, domain.WithCompactSource(envBool("COMPACT_SOURCE_LIST")))
	hub := subscription.NewHub(cache, envDur("PENDING_MOVE_TIMEOUT", 30*time.Second))

	logger := log.New()
	logger.SetLevel(log.GetLevel())
	activities := api.NewActivitySender(store, logger)

	svc := api.Services{
		Teams: domain.NewTeamService(cache, activities),
		Cards: domain.NewCardService(cache, engine, activities,
			domain.WithMoveObserver(hub), domain.WithMoveTimeout(envDur("MOVE_TIMEOUT", 10*time.Second))),
		Comments: domain.NewCommentService(store, activities),
		Sprints:  domain.NewSprintService(store, activities),
		Profiles: domain.NewUserService(store),
		Feed:     store,
		Stream:   hub,
	}

	auth := newAuth()
	deduper := api.NewRedisDeduper(rc, envDur("DEDUPER_TTL", 24*time.Hour))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go subscription.SubscribeUpdates(ctx, rc, hub, updatesChannel, time.Second)
	processor := activity.NewProcessor(store, store, cache, activity.Options{
		BatchSize:  int32(envInt("ACTIVITY_BATCH", 16)),
		Visibility: envDur("ACTIVITY_VISIBILITY_TIMEOUT", 30*time.Second),
	})
	go processor.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	api.Register(e, svc, auth, deduper, logger)

	listenAddr := ":" + envStr("PORT", "8080")
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()
	log.WithFields(log.Fields{"addr": listenAddr, "moveMode": mode}).Info("scrum board api started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	activities.Close()
	if err := rc.Close(); err != nil {
		log.WithError(err).Warn("redis close")
	}
}

func newAuth() *api.Auth {
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	authDomain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || authDomain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+authDomain+"/")
}

// parseRedisOptions accepts a redis:// URL or the Azure Cache
// "host:port,password=...,ssl=True" form.
func parseRedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: must be a positive integer", name)
	}
	return n
}

func envDur(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
