// Package hcl provides the HCL implementation of the config.Loader interface.
// It is responsible for file discovery, parsing, variable evaluation and the
// translation of HCL blocks into the format-agnostic config model.
//
// A pipeline is described by four kinds of top-level blocks, which may be
// spread over any number of files:
//
//	variables {
//	  root = "data"
//	}
//
//	node "faidx" {
//	  description = "Index reference"
//	  command "samtools" {
//	    argv    = ["samtools", "faidx", "{IN_FASTA}"]
//	    inputs  = { FASTA = "${var.root}/ref.fasta" }
//	    outputs = { FAI = "${var.root}/ref.fasta.fai" }
//	  }
//	}
//
//	meta "all" {
//	  depends_on = ["faidx"]
//	}
//
//	index "bai" {
//	  kind  = "bam"
//	  input = "${var.root}/sample.bam"
//	}
//
// Variables from every file are evaluated first and exposed as `var.<name>`
// to all node, meta and index blocks. An index block writes the BAM (.bai),
// FASTA (.fai) or tabix (.tbi) index of its input.
package hcl
