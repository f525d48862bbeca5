// Package querysql translates queryir queries into PostgreSQL commands over
// document tables.
//
// Every document table is aliased d. Members are located as follows:
//
//	identity member        d.id
//	duplicated member      d.<column>
//	text JSON member       d.data ->> 'Key'
//	other JSON member      CAST(d.data ->> 'Key' as <type>)
//
// CRITICAL: values are never interpolated. Every Param and Const becomes a
// $n placeholder with an Extractor at index n-1. Only mapping-derived text
// (table names, JSON keys, discriminator aliases) appears literally.
package querysql
