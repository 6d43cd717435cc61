package media

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/internal/document/handler"
)

// RegisterRoutes mounts the title CRUD routes and the catalog queries on rg.
func RegisterRoutes(rg *gin.RouterGroup, svc *Service, opts handler.Options) {
	h := handler.New(svc, opts)

	rg.GET("/country", func(c *gin.Context) {
		list, err := svc.Countries(c.Request.Context())
		if err != nil {
			h.Fail(c, err)
			return
		}
		respondList(c, list, len(list))
	})

	byCountry := func(c *gin.Context) {
		rows, err := svc.CountryBreakdown(c.Request.Context(), c.Param("country"))
		if err != nil {
			h.Fail(c, err)
			return
		}
		respondList(c, rows, len(rows))
	}
	rg.GET("/country/:country", byCountry)
	rg.POST("/country/:country", byCountry)

	byRating := func(c *gin.Context) {
		rows, err := svc.RatingBreakdown(c.Request.Context(), c.Param("country"))
		if err != nil {
			h.Fail(c, err)
			return
		}
		respondList(c, rows, len(rows))
	}
	rg.GET("/rating/:country", byRating)
	rg.POST("/rating/:country", byRating)

	handler.RegisterDocumentRoutes(rg, h)
}

func respondList(c *gin.Context, v any, n int) {
	if n == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, v)
}
