package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/circulation"
	"github.com/erazemk/izposoja/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sqlx.DB, tokens *auth.Tokens, svc *circulation.Service) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, Tokens: tokens}
	usersHandler := &UsersHandler{DB: db, Policy: svc.Policy()}
	titlesHandler := &TitlesHandler{DB: db}
	loansHandler := &LoansHandler{Circulation: svc}
	borrowersHandler := &BorrowersHandler{Circulation: svc}

	authMW := AuthMiddleware(tokens, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireLibrarian := RequireRole(model.RoleLibrarian)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Titles: read (all roles), write (librarian+).
	mux.Handle("GET /api/titles", authMW(http.HandlerFunc(titlesHandler.List)))
	mux.Handle("POST /api/titles", authMW(requireLibrarian(http.HandlerFunc(titlesHandler.Create))))
	mux.Handle("GET /api/titles/{id}", authMW(http.HandlerFunc(titlesHandler.Get)))
	mux.Handle("PUT /api/titles/{id}", authMW(requireLibrarian(http.HandlerFunc(titlesHandler.Update))))
	mux.Handle("DELETE /api/titles/{id}", authMW(requireLibrarian(http.HandlerFunc(titlesHandler.Delete))))
	mux.Handle("POST /api/titles/{id}/copies", authMW(requireLibrarian(http.HandlerFunc(titlesHandler.AdjustCopies))))
	mux.Handle("PUT /api/titles/{id}/cover", authMW(requireLibrarian(http.HandlerFunc(titlesHandler.UploadCover))))
	mux.Handle("GET /api/titles/{id}/cover", authMW(http.HandlerFunc(titlesHandler.GetCover)))

	// Loans: borrowers act on their own, desk actions are librarian+.
	mux.Handle("POST /api/loans", authMW(http.HandlerFunc(loansHandler.Create)))
	mux.Handle("GET /api/loans", authMW(http.HandlerFunc(loansHandler.List)))
	mux.Handle("GET /api/loans/{id}", authMW(http.HandlerFunc(loansHandler.Get)))
	mux.Handle("GET /api/loans/{id}/fine", authMW(http.HandlerFunc(loansHandler.Fine)))
	mux.Handle("POST /api/loans/{id}/renew", authMW(http.HandlerFunc(loansHandler.Renew)))
	mux.Handle("POST /api/loans/{id}/ready", authMW(requireLibrarian(http.HandlerFunc(loansHandler.MarkReady))))
	mux.Handle("POST /api/loans/{id}/pickup", authMW(requireLibrarian(http.HandlerFunc(loansHandler.Pickup))))
	mux.Handle("POST /api/loans/{id}/reject", authMW(requireLibrarian(http.HandlerFunc(loansHandler.Reject))))
	mux.Handle("POST /api/loans/{id}/return", authMW(requireLibrarian(http.HandlerFunc(loansHandler.Return))))

	// Borrower standing and desk jobs.
	mux.Handle("GET /api/borrowers/{id}/snapshot", authMW(http.HandlerFunc(borrowersHandler.Snapshot)))
	mux.Handle("POST /api/reminders/sweep", authMW(requireLibrarian(http.HandlerFunc(borrowersHandler.Reminders))))
	mux.Handle("POST /api/sections/assign", authMW(requireLibrarian(http.HandlerFunc(AssignSections))))

	return RequestIDMiddleware(LoggingMiddleware(mux))
}
