// Package analyzers provides the built-in review.Analyzer implementations.
//
//   - [Static] runs flake8, bandit and mypy over the code reconstructed from a
//     Python file's patch and maps their output back to real line numbers.
//   - [Patterns] applies regular-expression rules to added lines: hard-coded
//     secrets, shell execution, broad exception handlers, leftover TODOs.
//   - [Size] warns about files with a large number of added lines.
//
// [Cached] wraps any analyzer with a cache.Manager so unchanged content is
// not analyzed twice.
package analyzers
