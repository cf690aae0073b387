package utils

import "net/http"

// ResponseCode business response code
type ResponseCode int

const (
	CodeSuccess ResponseCode = 0

	// Request errors
	CodeInvalidParam ResponseCode = 1001
	CodeUnauthorized ResponseCode = 1002
	CodeForbidden    ResponseCode = 1003
	CodeRateLimit    ResponseCode = 1004

	// Account errors
	CodeUserNotFound     ResponseCode = 2001
	CodeUserExists       ResponseCode = 2002
	CodeInvalidPassword  ResponseCode = 2003
	CodeInvalidToken     ResponseCode = 2004
	CodeAnonymousSession ResponseCode = 2005

	// Cart and catalog errors
	CodeCartItemNotFound  ResponseCode = 4041
	CodeShopNotFound      ResponseCode = 4042
	CodeServiceNotOffered ResponseCode = 4043

	// Merge errors
	CodeMergeFailed ResponseCode = 4501

	// System errors
	CodeInternalError ResponseCode = 5000
	CodeServiceError  ResponseCode = 5001
	CodeDatabaseError ResponseCode = 5002
	CodeRedisError    ResponseCode = 5003
	CodeConfigError   ResponseCode = 5004
)

// HTTPStatus maps a business code to the HTTP status used on the wire
func (c ResponseCode) HTTPStatus() int {
	switch c {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeMergeFailed:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidPassword, CodeInvalidToken, CodeAnonymousSession:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeUserNotFound, CodeCartItemNotFound, CodeShopNotFound, CodeServiceNotOffered:
		return http.StatusNotFound
	case CodeUserExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
