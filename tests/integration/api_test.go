package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	api "github.com/mberdnikov/shortly/internal/api/http"
	"github.com/mberdnikov/shortly/internal/config"
	"github.com/mberdnikov/shortly/internal/database/postgres"
	"github.com/mberdnikov/shortly/internal/service"
)

const (
	adminKeyHeader = "x-admin-key"
	adminKey       = "integration-admin-key"
	baseURL        = "http://sho.rt"
)

type APITestSuite struct {
	suite.Suite
	pgCont   testcontainers.Container
	dsn      string
	db       *sqlx.DB
	linkRepo *postgres.LinkRepository
	server   *httptest.Server
	e        *httpexpect.Expect
}

func (suite *APITestSuite) SetupSuite() {
	ctx := context.Background()

	pgUser := "test"
	pgPassword := "test"
	pgDB := "shortly"

	var err error
	suite.pgCont, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDB,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := suite.pgCont.Terminate(ctx); err != nil {
			suite.T().Fatalf("Failed to terminate postgres container: %v", err)
		}
	})

	pgHost, err := suite.pgCont.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get postgres container host: %v", err)
	}

	pgPort, err := suite.pgCont.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get postgres container port: %v", err)
	}

	suite.dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		pgUser, pgPassword, pgHost, pgPort.Int(), pgDB)

	suite.db, err = postgres.New(ctx, suite.dsn, postgres.Pool{MaxOpenConns: 10, MaxIdleConns: 5})
	if err != nil {
		suite.T().Fatalf("Failed to connect to database: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := suite.db.Close(); err != nil {
			suite.T().Fatalf("Failed to close database: %v", err)
		}
	})

	if err := postgres.RunMigrations("file://../../migrations", suite.dsn); err != nil {
		suite.T().Fatalf("Failed to run migrations: %v", err)
	}

	cfg := &config.Config{
		BaseURL:    baseURL,
		AdminKey:   adminKey,
		CORSOrigin: "*",
	}
	cfg.Postgres.DB = pgDB

	suite.linkRepo = postgres.NewLinkRepository(suite.db)
	linkSvc := service.NewLinkService(suite.linkRepo, baseURL, 7)
	logger := httplog.NewLogger("", httplog.Options{Writer: io.Discard})

	suite.server = httptest.NewServer(api.NewRouter(logger, linkSvc, cfg))
	suite.T().Cleanup(suite.server.Close)

	suite.e = httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  suite.server.URL,
		Reporter: httpexpect.NewAssertReporter(suite.T()),
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})
}

func (suite *APITestSuite) SetupTest() {
	if _, err := suite.db.Exec(`TRUNCATE TABLE links RESTART IDENTITY`); err != nil {
		suite.T().Fatalf("Failed to clean links table: %v", err)
	}
}

func (suite *APITestSuite) TestShortenResolveSummary() {
	shorten := suite.e.POST("/api/shorten").
		WithJSON(map[string]string{"url": "http://example.com/a"}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object()

	code := shorten.Value("short_code").String()
	code.Match(`^[A-Za-z0-9]{7}$`)
	shortCode := code.Raw()
	shorten.HasValue("short_url", baseURL+"/"+shortCode)
	shorten.HasValue("original_url", "http://example.com/a")

	// byte-identical resubmission reuses the record
	suite.e.POST("/api/shorten").
		WithJSON(map[string]string{"url": "http://example.com/a"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("short_code", shortCode)

	suite.e.GET("/" + shortCode).
		Expect().
		Status(http.StatusFound).
		Header("Location").IsEqual("http://example.com/a")

	summary := suite.e.GET("/api/admin/summary").
		WithHeader(adminKeyHeader, adminKey).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	summary.HasValue("total_links", 1)
	summary.HasValue("total_visits", 1)
}

func (suite *APITestSuite) TestShortenValidation() {
	for _, rawURL := range []string{"ftp://x", "not a url", ""} {
		suite.e.POST("/api/shorten").
			WithJSON(map[string]string{"url": rawURL}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			ContainsKey("error")
	}

	suite.e.GET("/api/debug/count").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("links_count", 0)
}

func (suite *APITestSuite) TestPreferredCode() {
	suite.e.POST("/api/shorten").
		WithJSON(map[string]string{
			"url":           "http://example.com/a",
			"preferredCode": "my-code",
		}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().
		HasValue("short_code", "my-code")

	// same preference for another URL collides and falls back to a generated code
	suite.e.POST("/api/shorten").
		WithJSON(map[string]string{
			"url":           "http://example.com/b",
			"preferredCode": "my-code",
		}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().
		Value("short_code").String().Match(`^[A-Za-z0-9]{7}$`)
}

func (suite *APITestSuite) TestConcurrentRedirects() {
	const redirects = 20

	shortCode := suite.e.POST("/api/shorten").
		WithJSON(map[string]string{"url": "http://example.com/hot"}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().
		Value("short_code").String().Raw()

	var wg sync.WaitGroup
	for i := 0; i < redirects; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/"+shortCode, nil)
			if err != nil {
				suite.T().Error(err)
				return
			}

			client := &http.Client{
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}

			resp, err := client.Do(req)
			if err != nil {
				suite.T().Error(err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	suite.e.GET("/api/admin/summary").
		WithHeader(adminKeyHeader, adminKey).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("total_visits", redirects)
}

func (suite *APITestSuite) TestUnknownShortCode() {
	suite.e.GET("/nope999").
		Expect().
		Status(http.StatusNotFound).
		Text().Contains("Not found")
}

func (suite *APITestSuite) TestAdminLifecycle() {
	for i := 0; i < 3; i++ {
		suite.e.POST("/api/shorten").
			WithJSON(map[string]string{"url": fmt.Sprintf("http://example.com/%d", i)}).
			Expect().
			Status(http.StatusCreated)
	}

	// wrong key performs no deletion
	suite.e.DELETE("/api/admin/links").
		WithHeader(adminKeyHeader, "wrong").
		WithJSON(map[string][]int64{"ids": {1, 2, 3}}).
		Expect().
		Status(http.StatusUnauthorized)

	list := suite.e.GET("/api/admin/links").
		WithHeader(adminKeyHeader, adminKey).
		WithQuery("limit", 2).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	list.HasValue("total", 3)
	list.Value("rows").Array().Length().IsEqual(2)

	// newest first
	first := list.Value("rows").Array().Value(0).Object()
	first.HasValue("original_url", "http://example.com/2")

	id := int64(first.Value("id").Number().Raw())

	suite.e.DELETE(fmt.Sprintf("/api/admin/links/%d", id)).
		WithHeader(adminKeyHeader, adminKey).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("ok", true)

	// deleting the same id again still succeeds
	suite.e.DELETE(fmt.Sprintf("/api/admin/links/%d", id)).
		WithHeader(adminKeyHeader, adminKey).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("ok", true)

	deleted := suite.e.DELETE("/api/admin/links").
		WithHeader(adminKeyHeader, adminKey).
		WithJSON(map[string][]int64{"ids": {1, 2, 3}}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	deleted.HasValue("ok", true)
	deleted.HasValue("deletedCount", 2)

	suite.e.GET("/api/admin/summary").
		WithHeader(adminKeyHeader, adminKey).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("total_links", 0)
}

func TestAPITestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	suite.Run(t, new(APITestSuite))
}
