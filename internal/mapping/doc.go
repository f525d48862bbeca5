// Package mapping holds the document mapping registry: for every document
// type, its table identity, column layout, identity strategy and (for type
// hierarchies) the discriminator dispatch table.
//
// Mappings are configured once, frozen, and read concurrently afterwards.
// A DocumentMapping is never mutated after Registry.Freeze; types first seen
// after Freeze get a default mapping through get-or-create.
//
// Table layout for a mapping with alias "user":
//
//	public.mt_doc_user
//	  id               <id column type>  PRIMARY KEY
//	  data             jsonb
//	  mt_last_modified timestamp with time zone
//	  mt_version       uuid
//	  mt_doc_type      character varying  (hierarchies only)
//	  <duplicated fields, in declaration order>
package mapping
