// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/branchscope/pkg/ux"
	"github.com/AleutianAI/branchscope/services/branchscope/analyzer"
	"github.com/AleutianAI/branchscope/services/branchscope/scanner"
)

const doctorSampleSize = 10

// runDoctor checks that files can be found and that the parser backend works
// before a full analysis is attempted.
func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p := ux.NewPrinter(cmd.OutOrStdout())

	p.Title("File scanner")
	sc, err := scanner.New(scanOptions())
	if err != nil {
		p.Error(err.Error())
		return err
	}
	files, err := sc.Scan(ctx)
	if err != nil {
		p.Error(err.Error())
		return err
	}
	sum := sc.Summarize(files, doctorSampleSize)
	p.KeyValue("Base path", sum.BasePath, 12)
	p.KeyValue("Folders", joinOrDash(sum.AnalyzeFolders), 12)
	p.KeyValue("Excluded", joinOrDash(sum.ExcludeFolders), 12)
	p.KeyValue("Extensions", joinOrDash(sum.Extensions), 12)
	p.KeyValue("Files", sum.TotalFiles, 12)
	for _, f := range sum.Sample {
		p.Bullet(f)
	}
	if sum.TotalFiles == 0 {
		p.Warning("No files found")
	}

	p.Title("Parser")
	parser, err := newParser(cfg)
	if err != nil {
		p.Error(err.Error())
		return err
	}
	p.KeyValue("Backend", parser.Name(), 12)
	if err := analyzer.SelfTest(ctx, parser); err != nil {
		p.Error("Parser test failed: " + err.Error())
		return fmt.Errorf("parser self-test: %w", err)
	}
	p.Success("Parser test passed")

	if len(files) == 0 {
		return nil
	}

	a, err := analyzer.New(parser, 1)
	if err != nil {
		return err
	}
	fa := a.AnalyzeFile(ctx, files[0], sc.Relative(files[0]))
	if fa.Failed() {
		p.Warning("Sample file analysis had error: " + fa.Error)
		return nil
	}
	p.Success(fmt.Sprintf("Sample file analysis: %s (%d dependencies)", fa.RelativePath, fa.TotalDependencies()))
	return nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
