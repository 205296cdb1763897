package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ministrylabs/attendance-api/internal/middleware"
	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/repository"
	"github.com/ministrylabs/attendance-api/internal/service"
)

// Handlers groups every handler the router needs.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Department *DepartmentHandler
	Program    *ProgramHandler
	Student    *StudentHandler
	Attendance *AttendanceHandler
}

// Register wires all API routes under /api/v1. Authentication and role checks
// live here; department-level checks live inside the services.
func Register(router *gin.Engine, h Handlers, auth *service.AuthService, userRepo *repository.UserRepository) {
	v1 := router.Group("/api/v1")

	v1.POST("/auth/login", h.Auth.Login)
	v1.POST("/auth/refresh", h.Auth.Refresh)

	protected := v1.Group("")
	protected.Use(middleware.JWT(auth))

	protected.POST("/auth/logout", h.Auth.Logout)
	protected.POST("/auth/change-password", h.Auth.ChangePassword)

	users := protected.Group("/users")
	{
		users.GET("/me", h.Users.Me)
		users.GET("", middleware.RequireRoles(models.RoleSuperAdmin), h.Users.List)
		users.POST("", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionCreate, "users"), h.Users.Create)
		users.POST("/admins", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionCreate, "users"), h.Users.CreateAdmin)
		users.POST("/managers", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionCreate, "users"), h.Users.CreateManager)
		users.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), "SELF"), h.Users.Get)
		users.PATCH("/:id", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionUpdate, "users"), h.Users.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionDelete, "users"), h.Users.Delete)
	}

	departments := protected.Group("/departments")
	{
		departments.GET("", h.Department.List)
		departments.GET("/:id", h.Department.Get)
		departments.POST("", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionCreate, "departments"), h.Department.Create)
		departments.PATCH("/:id", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionUpdate, "departments"), h.Department.Update)
		departments.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionDelete, "departments"), h.Department.Delete)
	}

	programs := protected.Group("/programs")
	{
		programs.GET("", h.Program.List)
		programs.GET("/:id", h.Program.Get)
		programs.POST("", middleware.Audit(userRepo, models.AuditActionCreate, "programs"), h.Program.Create)
		programs.PATCH("/:id", middleware.Audit(userRepo, models.AuditActionUpdate, "programs"), h.Program.Update)
		programs.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionDelete, "programs"), h.Program.Delete)
	}

	students := protected.Group("/students")
	{
		students.GET("", h.Student.List)
		students.GET("/:id", h.Student.Get)
		students.POST("", middleware.Audit(userRepo, models.AuditActionCreate, "students"), h.Student.Create)
		students.PATCH("/:id", middleware.Audit(userRepo, models.AuditActionUpdate, "students"), h.Student.Update)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.Audit(userRepo, models.AuditActionDelete, "students"), h.Student.Delete)
	}

	attendance := protected.Group("/attendance")
	{
		attendance.GET("/eligible-students", h.Attendance.EligibleStudents)

		sessions := attendance.Group("/sessions")
		sessions.GET("", h.Attendance.List)
		sessions.GET("/:id", h.Attendance.Get)
		sessions.GET("/:id/export", h.Attendance.Export)
		sessions.POST("/manual", middleware.Audit(userRepo, models.AuditActionCreate, "attendance_sessions"), h.Attendance.CreateManual)
		sessions.POST("/batch", middleware.Audit(userRepo, models.AuditActionCreate, "attendance_sessions"), h.Attendance.CreateBatch)
		sessions.POST("/:id/collect", middleware.Audit(userRepo, models.AuditActionUpdate, "attendance_records"), h.Attendance.Collect)
		sessions.POST("/:id/records", middleware.Audit(userRepo, models.AuditActionCreate, "attendance_records"), h.Attendance.AddRecord)
		sessions.PATCH("/:id", middleware.Audit(userRepo, models.AuditActionUpdate, "attendance_sessions"), h.Attendance.Update)
		sessions.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionDelete, "attendance_sessions"), h.Attendance.Delete)
	}
}
