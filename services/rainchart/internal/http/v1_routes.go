package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up /api/v1/chart.
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	c := v1.Group("/chart")
	{
		c.GET("", s.handleV1Chart)
		c.GET("/image", s.handleV1ChartImage)
		c.POST("/refresh", s.handleV1ChartRefresh)
		c.GET("/ws", s.handleV1ChartWS)
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
