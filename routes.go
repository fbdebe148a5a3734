package main

import "github.com/gin-gonic/gin"

func SetupRoutes(r *gin.Engine) {

	r.GET("/", Welcome)

	api := r.Group("/api")

	// Public Routes
	api.POST("/auth/register", Register)
	api.POST("/auth/login", Login)
	api.GET("/events", GetEvents)
	api.GET("/events/:id", GetEventByID)

	// Protected Routes
	authorized := api.Group("")
	authorized.Use(AuthMiddleware())
	{
		// EVENTS
		authorized.POST("/events", CreateEvent)
		authorized.GET("/events/created", GetCreatedEvents)
		authorized.GET("/events/attending", GetAttendingEvents)
		authorized.GET("/events/past", GetPastEvents)
		authorized.PUT("/events/:id", UpdateEvent)
		authorized.DELETE("/events/:id", DeleteEvent)

		// ATTENDANCE
		authorized.POST("/events/:id/join", JoinEvent)
		authorized.DELETE("/events/:id/join", LeaveEvent)

		// PROFILE
		authorized.GET("/users/profile", GetProfile)
		authorized.PUT("/users/profile", UpdateProfile)
		authorized.PUT("/users/password", UpdatePassword)
	}
}
