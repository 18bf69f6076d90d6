package testutil

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestContextWithTimeout(t *testing.T) {
	ctx := ContextWithTimeout(t, 10*time.Millisecond)
	<-ctx.Done()
	assert.Error(t, ctx.Err())
}

func TestRequireEventually(t *testing.T) {
	var n atomic.Int32
	RequireEventually(t, func() bool { return n.Add(1) >= 3 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}

func TestAssertNever(t *testing.T) {
	AssertNever(t, func() bool { return false }, 20*time.Millisecond, 5*time.Millisecond)
}

func TestDoAndDecode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": "INVALID_JSON", "message": err.Error()}})
			return
		}
		body["auth"] = c.GetHeader("Authorization")
		c.JSON(http.StatusOK, gin.H{"success": true, "data": body})
	})

	w := Do(t, r, Request{Method: http.MethodPost, Path: "/echo", Body: map[string]string{"name": "twill"}, Bearer: "tok"})
	resp := Decode[map[string]string](t, w, http.StatusOK)
	assert.True(t, resp.Success)
	assert.Equal(t, "twill", resp.Data["name"])
	assert.Equal(t, "Bearer tok", resp.Data["auth"])

	w = Do(t, r, Request{Method: http.MethodPost, Path: "/echo", Body: []int{1}})
	AssertErrorCode(t, w, http.StatusBadRequest, "INVALID_JSON")
}
