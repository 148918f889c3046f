/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log fields.
const (
	FieldActivityID      = "activity-id"
	FieldActivityType    = "activity-type"
	FieldActorID         = "actor-id"
	FieldBackoffDelay    = "backoff-delay"
	FieldData            = "data"
	FieldHandle          = "handle"
	FieldHTTPStatus      = "http-status"
	FieldInboxURL        = "inbox-url"
	FieldKeyID           = "key-id"
	FieldKeyOwner        = "key-owner"
	FieldMessageID       = "message-id"
	FieldParameter       = "parameter"
	FieldQueue           = "queue"
	FieldRequestURL      = "request-url"
	FieldRouteName       = "route-name"
	FieldServiceName     = "service"
	FieldSize            = "size"
	FieldTarget          = "target"
	FieldTotalAttempts   = "total-attempts"
	FieldURI             = "uri"
	FieldCacheExpiration = "cache-expiration"
)

// WithActivityID sets the activity-id field.
func WithActivityID(value string) zap.Field {
	return zap.String(FieldActivityID, value)
}

// WithActivityType sets the activity-type field.
func WithActivityType(value string) zap.Field {
	return zap.String(FieldActivityType, value)
}

// WithActorID sets the actor-id field.
func WithActorID(value string) zap.Field {
	return zap.String(FieldActorID, value)
}

// WithBackoffDelay sets the backoff-delay field.
func WithBackoffDelay(value time.Duration) zap.Field {
	return zap.Duration(FieldBackoffDelay, value)
}

// WithData sets the data field.
func WithData(value []byte) zap.Field {
	return zap.String(FieldData, string(value))
}

// WithHandle sets the handle field.
func WithHandle(value string) zap.Field {
	return zap.String(FieldHandle, value)
}

// WithHTTPStatus sets the http-status field.
func WithHTTPStatus(value int) zap.Field {
	return zap.Int(FieldHTTPStatus, value)
}

// WithInboxURL sets the inbox-url field.
func WithInboxURL(value string) zap.Field {
	return zap.String(FieldInboxURL, value)
}

// WithKeyID sets the key-id field.
func WithKeyID(value string) zap.Field {
	return zap.String(FieldKeyID, value)
}

// WithKeyOwner sets the key-owner field.
func WithKeyOwner(value string) zap.Field {
	return zap.String(FieldKeyOwner, value)
}

// WithMessageID sets the message-id field.
func WithMessageID(value string) zap.Field {
	return zap.String(FieldMessageID, value)
}

// WithParameter sets the parameter field.
func WithParameter(value string) zap.Field {
	return zap.String(FieldParameter, value)
}

// WithQueue sets the queue field.
func WithQueue(value string) zap.Field {
	return zap.String(FieldQueue, value)
}

// WithRequestURL sets the request-url field.
func WithRequestURL(value *url.URL) zap.Field {
	return zap.Stringer(FieldRequestURL, value)
}

// WithRouteName sets the route-name field.
func WithRouteName(value string) zap.Field {
	return zap.String(FieldRouteName, value)
}

// WithServiceName sets the service field.
func WithServiceName(value string) zap.Field {
	return zap.String(FieldServiceName, value)
}

// WithSize sets the size field.
func WithSize(value int) zap.Field {
	return zap.Int(FieldSize, value)
}

// WithTarget sets the target field.
func WithTarget(value string) zap.Field {
	return zap.String(FieldTarget, value)
}

// WithTotalAttempts sets the total-attempts field.
func WithTotalAttempts(value int) zap.Field {
	return zap.Int(FieldTotalAttempts, value)
}

// WithURI sets the uri field.
func WithURI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldURI, value)
}

// WithCacheExpiration sets the cache-expiration field.
func WithCacheExpiration(value time.Duration) zap.Field {
	return zap.Duration(FieldCacheExpiration, value)
}

// ObjectMarshaller can be used to log an object in JSON format.
type ObjectMarshaller struct {
	key string
	obj interface{}
}

// NewObjectMarshaller returns a new ObjectMarshaller.
func NewObjectMarshaller(key string, obj interface{}) *ObjectMarshaller {
	return &ObjectMarshaller{key: key, obj: obj}
}

// MarshalLogObject marshals the object.
func (m *ObjectMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	return e.AddReflected(m.key, m.obj)
}
