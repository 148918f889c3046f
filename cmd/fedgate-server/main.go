/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/fedgate/fedgate/cmd/fedgate-server/startcmd"
)

var logger = log.New("fedgate-server")

func main() {
	rootCmd := &cobra.Command{
		Use:   "fedgate-server",
		Short: "Reference ActivityPub federation server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(startcmd.GetStartCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Failed to run fedgate-server", log.WithError(err))

		os.Exit(1)
	}
}
