package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHub()
	go h.Run(ctx)
	return h
}

func TestHub_PublishByTopic(t *testing.T) {
	h := runHub(t)

	a := make(chan []byte, 1)
	b := make(chan []byte, 1)
	require.True(t, h.Subscribe(a, "s1"))
	require.True(t, h.Subscribe(b, "s2"))

	require.NoError(t, h.Publish(context.Background(), events.Event{Session: "s1", Kind: "selected"}))

	select {
	case msg := <-a:
		require.Contains(t, string(msg), `"kind":"selected"`)
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
	select {
	case <-b:
		t.Fatal("message leaked to another topic")
	case <-time.After(50 * time.Millisecond):
	}

	h.Unsubscribe(a, "s1")
	require.Eventually(t, func() bool { return h.Subscribers("s1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	require.False(t, h.Subscribe(make(chan []byte), "s1"))
	for i := 0; i < 200; i++ {
		h.PublishTopic("s1", []byte("x"))
	}
}

func TestHub_Stream(t *testing.T) {
	h := runHub(t)

	r := gin.New()
	r.GET("/events", func(c *gin.Context) {
		h.Stream((*ginext.Context)(c), c.Query("session"))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?session=s1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	h.PublishTopic("s1", []byte(`{"kind":"closed"}`))

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	require.Equal(t, "data: {\"kind\":\"closed\"}\n", line)
}

func TestHub_Stream_MissingTopic(t *testing.T) {
	h := runHub(t)

	r := gin.New()
	r.GET("/events", func(c *gin.Context) {
		h.Stream((*ginext.Context)(c), "")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
