// Package apitest provides a fake course platform server for client tests.
// It validates bearer tokens, issues refreshes, and records the writes it
// receives so tests can assert on replay behaviour.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avolkov/coursekit/model"
)

// Server is an in-memory course platform API bound to an httptest server.
// Mutate its fields under Lock to stage scenarios mid-test.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	Username string
	Password string
	User     model.User

	// AccessToken is the bearer currently accepted by authenticated
	// routes. Refresh swaps it for NextAccess.
	AccessToken  string
	RefreshToken string
	NextAccess   string
	FailRefresh  bool
	RefreshCalls int
	// RefreshDelay stalls the refresh endpoint, letting tests line up
	// concurrent callers against a single in-flight refresh.
	RefreshDelay time.Duration

	Courses      []model.Course
	Chapters     map[int64][]model.Chapter
	Tests        map[int64]model.Test
	ControlTests []model.ControlTest
	Progress     []model.CourseProgress
	Stats        model.Statistics

	// Completed records chapter completions in arrival order.
	Completed []int64
	// Subscribed records course subscriptions in arrival order.
	Subscribed []int64
	// ClientKeys records the X-Client-Key header of every write.
	ClientKeys []string
}

// New starts a fake server with one user and a small course catalogue.
func New() *Server {
	s := &Server{
		Username:     "ivan",
		Password:     "secret",
		User:         model.User{ID: 1, Username: "ivan", Email: "ivan@example.com", FirstName: "Ivan", LastName: "Petrov", Role: "student", IsActive: true},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		NextAccess:   "access-2",
		Courses: []model.Course{
			{ID: 1, Title: "Algorithms", Description: "Sorting and searching", Status: "published", CategoryID: 1},
			{ID: 2, Title: "Databases", Description: "Relational basics", Status: "published", CategoryID: 2},
		},
		Chapters: map[int64][]model.Chapter{
			1: {{ID: 41, Title: "Intro", CourseID: 1}, {ID: 42, Title: "Quicksort", CourseID: 1}},
		},
		Tests: map[int64]model.Test{
			42: {ID: 7, ChapterID: 42, Tasks: []model.Task{{ID: 70, Question: "Average complexity?", IsMultipleChoice: true, Point: 1}}},
		},
		ControlTests: []model.ControlTest{{ID: 9, Title: "Final"}},
		Progress:     []model.CourseProgress{{CourseID: 1, Title: "Algorithms", Completed: 1, Total: 2, Percent: 50}},
		Stats:        model.Statistics{CoursesSubscribed: 1, ChaptersCompleted: 1},
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// Lock takes the server mutex; pair with Unlock.
func (s *Server) Lock()   { s.mu.Lock() }
func (s *Server) Unlock() { s.mu.Unlock() }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Post("/auth/login/", s.handleLogin)
		r.Post("/auth/refresh/", s.handleRefresh)
		r.Post("/auth/register/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]string{"message": "registered"})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/auth/logout/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			})
			r.Get("/auth/me/", s.handleMe)
			r.Get("/courses/", s.handleCourses)
			r.Get("/courses/{id}/", s.handleCourse)
			r.Post("/courses/{id}/subscribe/", s.handleSubscribe)
			r.Get("/chapters/course/{id}/", s.handleChapters)
			r.Get("/chapters/{id}/", s.handleChapter)
			r.Post("/chapters/{id}/complete/", s.handleComplete)
			r.Get("/tests/chapter/{id}/", s.handleChapterTest)
			r.Post("/tests/chapter/{id}/submit/", s.handleSubmit)
			r.Get("/tests/control/", s.handleControlTests)
			r.Get("/tests/control/{id}/", s.handleControlTest)
			r.Post("/tests/control/{id}/submit/", s.handleSubmit)
			r.Get("/progress/courses/", s.handleProgress)
			r.Get("/progress/statistics/", s.handleStats)
		})
	})
	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.AccessToken
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token invalid or expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if body.Username != s.Username || body.Password != s.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, model.TokenPair{Access: s.AccessToken, Refresh: s.RefreshToken, User: &s.User})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	delay := s.RefreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefreshCalls++
	if s.FailRefresh || body.Refresh != s.RefreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "refresh token invalid"})
		return
	}
	s.AccessToken = s.NextAccess
	writeJSON(w, http.StatusOK, model.TokenPair{Access: s.AccessToken})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.User)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, _ := strconv.ParseInt(raw, 10, 64)
		var filtered []model.Course
		for _, c := range s.Courses {
			if c.CategoryID == id {
				filtered = append(filtered, c)
			}
		}
		writeJSON(w, http.StatusOK, filtered)
		return
	}
	writeJSON(w, http.StatusOK, s.Courses)
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Courses {
		if c.ID == id {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "course not found"})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscribed = append(s.Subscribed, urlID(r))
	s.ClientKeys = append(s.ClientKeys, r.Header.Get("X-Client-Key"))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chapters := s.Chapters[urlID(r)]
	if chapters == nil {
		chapters = []model.Chapter{}
	}
	writeJSON(w, http.StatusOK, chapters)
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.Chapters {
		for _, ch := range list {
			if ch.ID == id {
				writeJSON(w, http.StatusOK, ch)
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "chapter not found"})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completed = append(s.Completed, urlID(r))
	s.ClientKeys = append(s.ClientKeys, r.Header.Get("X-Client-Key"))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleChapterTest(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	test, ok := s.Tests[urlID(r)]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "no test for chapter"})
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClientKeys = append(s.ClientKeys, r.Header.Get("X-Client-Key"))
	writeJSON(w, http.StatusOK, model.TestResult{Score: 1, MaxScore: 1, Passed: true})
}

func (s *Server) handleControlTests(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.ControlTests)
}

func (s *Server) handleControlTest(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.ControlTests {
		if t.ID == id {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "control test not found"})
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.Progress)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.Stats)
}

func urlID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
