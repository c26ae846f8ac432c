// Package repository define las entidades de dominio y los contratos de
// persistencia de la base global (clientes, instancias, usuarios, membresías,
// tokens de reset y catálogo).
//
// Las implementaciones concretas viven en internal/store/pg.
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - IDs son uuid.UUID
//   - Errores de dominio están en errors.go
package repository
