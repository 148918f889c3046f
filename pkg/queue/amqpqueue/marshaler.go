/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqpqueue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trustbloc/logutil-go/pkg/log"
)

const (
	messageUUIDHeaderKey = "_watermill_message_uuid"
	metadataExpiration   = "expiration"
)

// expirationMarshaler is a modified version of the default marshaler in watermill-amqp.
// It allows a message's expiration to be set via the 'expiration' metadata property,
// which is required for the wait queue, and tolerates the headers that the broker adds
// when it dead-letters a message.
type expirationMarshaler struct{}

// Marshal marshals a message.
func (m *expirationMarshaler) Marshal(msg *message.Message) (amqp.Publishing, error) {
	headers := make(amqp.Table, len(msg.Metadata)+1)

	var expiration string

	for key, value := range msg.Metadata {
		if key == metadataExpiration {
			// The expiration is set on the publishing itself rather than passed
			// through as a header.
			expiration = asBrokerExpiration(value)

			continue
		}

		headers[key] = value
	}

	headers[messageUUIDHeaderKey] = msg.UUID

	return amqp.Publishing{
		Body:         msg.Payload,
		Headers:      headers,
		Expiration:   expiration,
		DeliveryMode: amqp.Persistent,
	}, nil
}

// Unmarshal unmarshals a message.
func (m *expirationMarshaler) Unmarshal(amqpMsg amqp.Delivery) (*message.Message, error) {
	msgUUID, err := unmarshalMessageUUID(amqpMsg.Headers)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(msgUUID, amqpMsg.Body)
	msg.Metadata = make(message.Metadata, len(amqpMsg.Headers)-1)

	for key, value := range amqpMsg.Headers {
		if key == messageUUIDHeaderKey {
			continue
		}

		stringValue, ok := value.(string)
		if !ok {
			// The broker adds non-string headers (such as the x-death table) when it
			// dead-letters a message. These are of no interest to the listener.
			continue
		}

		msg.Metadata[key] = stringValue
	}

	return msg, nil
}

func unmarshalMessageUUID(headers amqp.Table) (string, error) {
	value, ok := headers[messageUUIDHeaderKey]
	if !ok {
		return "", nil
	}

	msgUUID, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("message UUID is not a string, but: %#v", value)
	}

	return msgUUID, nil
}

// asBrokerExpiration converts a Go duration string to the broker's expiration format,
// which is a string containing milliseconds.
func asBrokerExpiration(value string) string {
	duration, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid value for expiration metadata property. No expiration will be set.",
			log.WithError(err))

		return ""
	}

	return strconv.FormatInt(duration.Milliseconds(), 10)
}
