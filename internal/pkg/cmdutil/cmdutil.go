/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmdutil

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// GetUserSetOptionalVarFromString returns the value of either the command line flag or
// the environment variable, or an empty string if neither has been set.
func GetUserSetOptionalVarFromString(cmd *cobra.Command, flagName, envKey string) string {
	v, _ := GetUserSetVarFromString(cmd, flagName, envKey, true)

	return v
}

// GetUserSetVarFromString returns the value of either the command line flag or the
// environment variable. An error is returned if the value is required and neither
// has been set.
func GetUserSetVarFromString(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf("%s flag not found: %w", flagName, err)
		}

		if value == "" {
			return "", fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		if !isOptional && value == "" {
			return "", fmt.Errorf("%s value is empty", envKey)
		}

		return value, nil
	}

	return "", errors.New("neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set")
}
