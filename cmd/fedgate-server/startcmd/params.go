/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedgate/fedgate/internal/pkg/cmdutil"
)

const (
	hostURLFlagName  = "host-url"
	hostURLEnvKey    = "FEDGATE_HOST_URL"
	hostURLFlagUsage = "Host and port on which to listen, e.g. 0.0.0.0:8080." +
		" Alternatively, this can be set with the following environment variable: " + hostURLEnvKey

	actorHandleFlagName  = "actor-handle"
	actorHandleEnvKey    = "FEDGATE_ACTOR_HANDLE"
	actorHandleFlagUsage = "Handle of the service actor served by this node. Defaults to 'service'." +
		" Alternatively, this can be set with the following environment variable: " + actorHandleEnvKey

	databaseTypeFlagName  = "database-type"
	databaseTypeEnvKey    = "FEDGATE_DATABASE_TYPE"
	databaseTypeFlagUsage = "Type of the key-value store. Supported values: mem, mongodb. Defaults to mem." +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseURLFlagName  = "database-url"
	databaseURLEnvKey    = "FEDGATE_DATABASE_URL"
	databaseURLFlagUsage = "Connection URL of the database. Required for the mongodb database type." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	queueTypeFlagName  = "queue-type"
	queueTypeEnvKey    = "FEDGATE_QUEUE_TYPE"
	queueTypeFlagUsage = "Type of the outbound delivery queue. Supported values: mem, amqp. Defaults to mem." +
		" Alternatively, this can be set with the following environment variable: " + queueTypeEnvKey

	queueURLFlagName  = "queue-url"
	queueURLEnvKey    = "FEDGATE_QUEUE_URL"
	queueURLFlagUsage = "Connection URL of the AMQP broker. Required for the amqp queue type." +
		" Alternatively, this can be set with the following environment variable: " + queueURLEnvKey

	tlsCertFileFlagName  = "tls-cert-file"
	tlsCertFileEnvKey    = "FEDGATE_TLS_CERT_FILE"
	tlsCertFileFlagUsage = "Path of the TLS certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	tlsKeyFileFlagName  = "tls-key-file"
	tlsKeyFileEnvKey    = "FEDGATE_TLS_KEY_FILE"
	tlsKeyFileFlagUsage = "Path of the TLS key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey
)

const (
	databaseTypeMem     = "mem"
	databaseTypeMongoDB = "mongodb"

	queueTypeMem  = "mem"
	queueTypeAMQP = "amqp"

	defaultActorHandle = "service"
)

type serverParameters struct {
	hostURL      string
	actorHandle  string
	databaseType string
	databaseURL  string
	queueType    string
	queueURL     string
	tlsCertFile  string
	tlsKeyFile   string
}

func createFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(hostURLFlagName, "u", "", hostURLFlagUsage)
	cmd.Flags().String(actorHandleFlagName, "", actorHandleFlagUsage)
	cmd.Flags().String(databaseTypeFlagName, "", databaseTypeFlagUsage)
	cmd.Flags().String(databaseURLFlagName, "", databaseURLFlagUsage)
	cmd.Flags().String(queueTypeFlagName, "", queueTypeFlagUsage)
	cmd.Flags().String(queueURLFlagName, "", queueURLFlagUsage)
	cmd.Flags().String(tlsCertFileFlagName, "", tlsCertFileFlagUsage)
	cmd.Flags().String(tlsKeyFileFlagName, "", tlsKeyFileFlagUsage)
}

func getServerParameters(cmd *cobra.Command) (*serverParameters, error) {
	hostURL, err := cmdutil.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	actorHandle := cmdutil.GetUserSetOptionalVarFromString(cmd, actorHandleFlagName, actorHandleEnvKey)
	if actorHandle == "" {
		actorHandle = defaultActorHandle
	}

	databaseType := cmdutil.GetUserSetOptionalVarFromString(cmd, databaseTypeFlagName, databaseTypeEnvKey)
	if databaseType == "" {
		databaseType = databaseTypeMem
	}

	databaseURL := cmdutil.GetUserSetOptionalVarFromString(cmd, databaseURLFlagName, databaseURLEnvKey)

	if databaseType == databaseTypeMongoDB && databaseURL == "" {
		return nil, fmt.Errorf("%s is required for database type %s", databaseURLFlagName, databaseTypeMongoDB)
	}

	queueType := cmdutil.GetUserSetOptionalVarFromString(cmd, queueTypeFlagName, queueTypeEnvKey)
	if queueType == "" {
		queueType = queueTypeMem
	}

	queueURL := cmdutil.GetUserSetOptionalVarFromString(cmd, queueURLFlagName, queueURLEnvKey)

	if queueType == queueTypeAMQP && queueURL == "" {
		return nil, fmt.Errorf("%s is required for queue type %s", queueURLFlagName, queueTypeAMQP)
	}

	return &serverParameters{
		hostURL:      hostURL,
		actorHandle:  actorHandle,
		databaseType: databaseType,
		databaseURL:  databaseURL,
		queueType:    queueType,
		queueURL:     queueURL,
		tlsCertFile:  cmdutil.GetUserSetOptionalVarFromString(cmd, tlsCertFileFlagName, tlsCertFileEnvKey),
		tlsKeyFile:   cmdutil.GetUserSetOptionalVarFromString(cmd, tlsKeyFileFlagName, tlsKeyFileEnvKey),
	}, nil
}
