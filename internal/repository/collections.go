package repository

// Collection names in the remote document store.
const (
	colClasses          = "classes"
	colEnrollments      = "enrollments"
	colInvites          = "invites"
	colActivities       = "activities"
	colSubmissions      = "submissions"
	colNotifications    = "notifications"
	colNotices          = "notices"
	colReadReceipts     = "read_receipts"
	colAchievementRules = "achievement_rules"
	colUserAchievements = "user_achievements"
	colQuizzes          = "quizzes"
	colQuizProgress     = "quiz_progress"
	colModules          = "modules"
	colModuleProgress   = "module_progress"
)
