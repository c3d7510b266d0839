package chain

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, body)
		c.Abort()
	}
}

func passThrough(c *gin.Context) {}

func TestChainMutations(t *testing.T) {
	c := New()
	assert.Equal(t, 1, c.Use("a", "first", passThrough))
	assert.Equal(t, 2, c.Use("b", "second", passThrough))
	assert.Equal(t, 3, c.Use("b", "third", passThrough))
	assert.Equal(t, 4, c.Use("c", "fourth", passThrough))

	assert.Equal(t, 2, c.RemoveTag("b"))
	require.Equal(t, 2, c.Len())
	assert.Equal(t, "fourth", c.Entries()[1].Name)

	require.NoError(t, c.RemoveRange(0, 1))
	assert.Equal(t, "c", c.Entries()[0].Tag)

	assert.Error(t, c.RemoveRange(0, 5))
	assert.Error(t, c.RemoveRange(1, 0))
}

func TestChainUpdate(t *testing.T) {
	c := New()
	c.Use("old", "old", passThrough)

	err := c.Update(func(tx *Tx) error {
		assert.Equal(t, 1, tx.RemoveTag("old"))
		assert.Equal(t, 0, tx.Len())
		tx.Use("new", "new", passThrough)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", c.Entries()[0].Tag)
}

func TestChainHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c := New()
	router := gin.New()
	router.Use(c.Handler())
	router.NoRoute(func(ctx *gin.Context) {
		ctx.String(http.StatusNotFound, "fallthrough")
	})

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		return w
	}

	w := serve("/api")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "fallthrough", w.Body.String())

	c.Use("t", "api", func(ctx *gin.Context) {
		if ctx.Request.URL.Path == "/api" {
			respond("api")(ctx)
		}
	})

	w = serve("/api")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "api", w.Body.String())

	w = serve("/other")
	assert.Equal(t, "fallthrough", w.Body.String())
}
