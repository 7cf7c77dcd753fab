package model

import "time"

// Enrollment は受講者とコースを結びつける受講レコードを表す。
// enrollments/{userID}_{courseID} ドキュメントとして永続化される。
// ドキュメントIDを(userID, courseID)から決定的に導出することで、
// 同時二重登録でも (student, course) ペアごとに高々1件となることを保証する。
type Enrollment struct {
	ID               string    `firestore:"-"`
	UserID           string    `firestore:"userId"`
	CourseID         string    `firestore:"courseId"`
	Progress         int       `firestore:"progress"` // 0〜100。completedModulesから導出される
	CompletedModules []int     `firestore:"completedModules"`
	EnrolledAt       time.Time `firestore:"enrolledAt"`
}

// EnrollmentID は(userID, courseID)ペアから決定的なドキュメントIDを導出する。
func EnrollmentID(userID, courseID string) string {
	return userID + "_" + courseID
}
