package forms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/goatdesk/internal/gateway"
)

func formServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var hits sync.Map
	handler := func(c *gin.Context) {
		count, _ := hits.LoadOrStore(c.FullPath(), 0)
		hits.Store(c.FullPath(), count.(int)+1)
		c.JSON(http.StatusOK, gin.H{"chatToken": "tok-123"})
	}

	router := gin.New()
	for _, path := range []string{"/api/tele", "/api/fordon", "/api/forsakring", "/api/forms"} {
		router.POST(path, handler)
	}
	router.GET("/api/chat/auth-status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"isLoggedIn": true, "firstName": "Eva"})
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSubmitRoutesByCategory(t *testing.T) {
	srv, hits := formServer(t)
	c := NewClient(gateway.NewClient(srv.URL))

	cases := []struct {
		formType string
		endpoint string
	}{
		{FormTele, "/api/tele"},
		{FormFordon, "/api/fordon"},
		{FormForsakring, "/api/forsakring"},
		{"pension", "/api/forms"},
	}
	for _, tc := range cases {
		token, err := c.Submit(context.Background(), Submission{
			FormType: tc.formType,
			Sender:   "Anna",
			Message:  "hjälp tack",
		})
		if err != nil {
			t.Fatalf("Submit(%s): %v", tc.formType, err)
		}
		if token == "" {
			t.Fatalf("Submit(%s): empty token", tc.formType)
		}
		if _, ok := hits.Load(tc.endpoint); !ok {
			t.Fatalf("Submit(%s) did not hit %s", tc.formType, tc.endpoint)
		}
	}
}

func TestSubmitValidatesLocally(t *testing.T) {
	srv, hits := formServer(t)
	c := NewClient(gateway.NewClient(srv.URL))

	if _, err := c.Submit(context.Background(), Submission{FormType: FormTele, Message: "x"}); !errors.Is(err, ErrMissingSender) {
		t.Fatalf("expected ErrMissingSender, got %v", err)
	}
	if _, err := c.Submit(context.Background(), Submission{FormType: FormTele, Sender: "Anna", Message: "  "}); !errors.Is(err, ErrMissingMessage) {
		t.Fatalf("expected ErrMissingMessage, got %v", err)
	}

	if _, ok := hits.Load("/api/tele"); ok {
		t.Fatal("validation failures must not reach the server")
	}
}

func TestCheckAuth(t *testing.T) {
	srv, _ := formServer(t)
	c := NewClient(gateway.NewClient(srv.URL))

	status, err := c.CheckAuth(context.Background())
	if err != nil {
		t.Fatalf("CheckAuth: %v", err)
	}
	if !status.IsLoggedIn || status.FirstName != "Eva" {
		t.Fatalf("unexpected status: %+v", status)
	}
}
