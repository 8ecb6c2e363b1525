/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-dreamtone/internal/band"
)

func (a *app) bandsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bands",
		Short: "List brainwave bands and their beat frequencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BAND\tRANGE (Hz)\tBASE (Hz)\tBEAT (Hz)\tDESCRIPTION")
			for _, b := range band.All() {
				fmt.Fprintf(w, "%s\t%g-%g\t%g\t%g\t%s\n",
					b.Name, b.MinHz, b.MaxHz, b.BaseFrequency(), b.BeatFrequency(), b.Description)
			}
			return w.Flush()
		},
	}
}
