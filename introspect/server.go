/*
Package introspect exposes a read-only HTTP view of a running reactor for
debugging: per-shard pending, fired and wakeup counters.
*/
package introspect

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gaborbarna/cats-effect/engine"
)

type Server struct {
	*gin.Engine
	reactor *engine.Engine
	srv     *http.Server
}

func New(reactor *engine.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	that := &Server{Engine: gin.New(), reactor: reactor}
	that.Use(gin.Recovery())
	that.GET("/reactor/stats", that.getStats)
	that.GET("/reactor/healthz", that.getHealth)
	return that
}

func (that *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"shards": that.reactor.Stats(),
	})
}

func (that *Server) getHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (that *Server) Serve(addr string) error {
	that.srv = &http.Server{Addr: addr, Handler: that.Engine}
	return that.srv.ListenAndServe()
}

func (that *Server) Close() error {
	if that.srv == nil {
		return nil
	}
	return that.srv.Close()
}
