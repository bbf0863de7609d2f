package middleware

import (
	"net/http"

	"github.com/meridianfarms/pickups-backend/api/responses"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

// ShopContext lets a shop-pinned token through as-is and resolves the
// X-Shop-ID header for tokens that are not pinned. Every route behind it can
// rely on a shop id being present.
func ShopContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ShopIDFromContext(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("X-Shop-ID")
			if header == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing"))
				return
			}
			ctx := WithShopID(r.Context(), header)
			if logg != nil {
				ctx = logg.WithShopID(ctx, header)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
