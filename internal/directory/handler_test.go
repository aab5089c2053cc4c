package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-backend/internal/platform/auth"
)

type memDir struct {
	classes map[string]*Class
	members map[string]Member
}

func (d *memDir) GetClass(_ context.Context, id string) (*Class, error) {
	c, ok := d.classes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (d *memDir) GetSubject(context.Context, string) (*Subject, error) { return nil, ErrNotFound }

func (d *memDir) Roster(_ context.Context, classID string) ([]Member, error) {
	c, ok := d.classes[classID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Member, 0, len(c.StudentIDs))
	for _, id := range c.StudentIDs {
		out = append(out, d.members[id])
	}
	return out, nil
}

func newRosterRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	teacher := "t1"
	dir := &memDir{
		classes: map[string]*Class{
			"c1": {ID: "c1", Name: "10A", TeacherID: &teacher, StudentIDs: []string{"s2", "s1"}},
			"c2": {ID: "c2", Name: "10B"},
		},
		members: map[string]Member{
			"s1": {ID: "s1", Name: "Ana", Email: "ana@school.test"},
			"s2": {ID: "s2", Name: "Ben", Email: "ben@school.test"},
		},
	}
	r := gin.New()
	g := r.Group("", func(c *gin.Context) {
		auth.SetCaller(c, auth.Caller{UserID: c.GetHeader("X-Test-User"), Role: auth.Role(c.GetHeader("X-Test-Role"))})
	})
	RegisterRoutes(g, NewService(dir))
	return r
}

func getRoster(r http.Handler, classID, user, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/classes/"+classID+"/roster", nil)
	req.Header.Set("X-Test-User", user)
	req.Header.Set("X-Test-Role", role)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRosterOwnerSeesStudentsInEnrollmentOrder(t *testing.T) {
	w := getRoster(newRosterRouter(), "c1", "t1", "teacher")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ClassID  string   `json:"classId"`
		Students []Member `json:"students"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "c1", body.ClassID)
	require.Len(t, body.Students, 2)
	assert.Equal(t, "Ben", body.Students[0].Name)
	assert.Equal(t, "Ana", body.Students[1].Name)
}

func TestRosterAccess(t *testing.T) {
	r := newRosterRouter()
	cases := []struct {
		name    string
		classID string
		user    string
		role    string
		want    int
	}{
		{"admin", "c1", "a1", "admin", http.StatusOK},
		{"other teacher", "c1", "t9", "teacher", http.StatusForbidden},
		{"unowned class", "c2", "t1", "teacher", http.StatusForbidden},
		{"admin on unowned class", "c2", "a1", "admin", http.StatusOK},
		{"student", "c1", "s1", "student", http.StatusForbidden},
		{"missing class", "nope", "a1", "admin", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := getRoster(r, tc.classID, tc.user, tc.role)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}
