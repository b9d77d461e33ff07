package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dealer-crm/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithIdentity(id auth.Identity, chain ...gin.HandlerFunc) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(200) })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	code := serveWithIdentity(auth.Identity{UserID: "u", DealershipID: 1, Role: RoleSuperAdmin},
		RequireDealership(), RequireAnyRole(RoleAdmin))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesOtherRoles(t *testing.T) {
	code := serveWithIdentity(auth.Identity{UserID: "u", DealershipID: 1, Role: RoleAgent},
		RequireDealership(), RequireAnyRole(RoleAdmin, RoleManager))
	if code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_AllowsListedRole(t *testing.T) {
	code := serveWithIdentity(auth.Identity{UserID: "u", DealershipID: 1, Role: RoleManager},
		RequireDealership(), RequireAnyRole(RoleAdmin, RoleManager))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireDealership_Required(t *testing.T) {
	code := serveWithIdentity(auth.Identity{UserID: "u", Role: RoleAdmin},
		RequireDealership(), RequireAnyRole(RoleAdmin))
	if code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireDealership_RejectsNonPositive(t *testing.T) {
	code := serveWithIdentity(auth.Identity{UserID: "u", DealershipID: -3, Role: RoleSuperAdmin},
		RequireDealership())
	if code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsKnownRole(t *testing.T) {
	for _, r := range []string{RoleSuperAdmin, RoleAdmin, RoleManager, RoleAgent} {
		if !IsKnownRole(r) {
			t.Fatalf("expected %q to be known", r)
		}
	}
	if IsKnownRole("owner") {
		t.Fatalf("owner is not a dealership role")
	}
}
